package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"ollamad/internal/apperr"
	"ollamad/internal/engine"
	"ollamad/pkg/types"
)

// outcome is what a run hands back to Generate and Chat for response assembly.
type outcome struct {
	res          engine.Result
	loadDuration time.Duration
	total        time.Duration
	// partialErr is set when the backend failed after producing output.
	partialErr error
}

// Generate completes req.Prompt. When emit is non-nil each decoded delta is passed
// to it as a done=false record and the returned final record carries no text, so
// clients joining every record's response see the answer once.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest, emit func(types.GenerateResponse) error) (types.GenerateResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return types.GenerateResponse{}, apperr.BadRequest("model is required")
	}
	if err := validateFormat(req.Format); err != nil {
		return types.GenerateResponse{}, err
	}
	if err := m.defaults.Merge(req.Options).Validate(); err != nil {
		return types.GenerateResponse{}, err
	}
	var onDelta engine.Emit
	if emit != nil {
		onDelta = func(delta string) error {
			return emit(types.GenerateResponse{Model: req.Model, CreatedAt: now(), Response: delta})
		}
	}
	in := engine.Input{Prompt: engine.RenderGeneratePrompt(req.Prompt, req.System), Context: req.Context}
	out, err := m.run(ctx, "generate", req.Model, in, req.Options, onDelta)
	if err != nil {
		return types.GenerateResponse{}, err
	}
	resp := types.GenerateResponse{
		Model:      req.Model,
		CreatedAt:  now(),
		Response:   finalText(out.res.Text, emit != nil),
		Done:       true,
		DoneReason: out.res.DoneReason,
		Context:    out.res.Context,
		Metrics:    out.metrics(),
	}
	if out.partialErr != nil {
		resp.Error = apperr.Message(out.partialErr)
	}
	return resp, nil
}

// Chat renders the conversation with the instruction template and completes it.
func (m *Manager) Chat(ctx context.Context, req types.ChatRequest, emit func(types.ChatResponse) error) (types.ChatResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return types.ChatResponse{}, apperr.BadRequest("model is required")
	}
	if err := ValidateMessages(req.Messages); err != nil {
		return types.ChatResponse{}, err
	}
	if err := m.defaults.Merge(req.Options).Validate(); err != nil {
		return types.ChatResponse{}, err
	}
	var onDelta engine.Emit
	if emit != nil {
		onDelta = func(delta string) error {
			return emit(types.ChatResponse{
				Model:     req.Model,
				CreatedAt: now(),
				Message:   types.Message{Role: types.RoleAssistant, Content: delta},
			})
		}
	}
	in := engine.Input{Prompt: engine.RenderChatPrompt(req.Messages, "")}
	out, err := m.run(ctx, "chat", req.Model, in, req.Options, onDelta)
	if err != nil {
		return types.ChatResponse{}, err
	}
	resp := types.ChatResponse{
		Model:      req.Model,
		CreatedAt:  now(),
		Message:    types.Message{Role: types.RoleAssistant, Content: finalText(out.res.Text, emit != nil)},
		Done:       true,
		DoneReason: out.res.DoneReason,
		Metrics:    out.metrics(),
	}
	if out.partialErr != nil {
		resp.Error = apperr.Message(out.partialErr)
	}
	return resp, nil
}

// finalText is the text of the done=true record: empty when the deltas already
// carried it.
func finalText(text string, streamed bool) string {
	if streamed {
		return ""
	}
	return text
}

// ValidateMessages checks a chat transcript: at least one message, known roles,
// and at least one user turn.
func ValidateMessages(msgs []types.Message) error {
	if len(msgs) == 0 {
		return apperr.BadRequest("messages must not be empty")
	}
	users := 0
	for i, msg := range msgs {
		switch msg.Role {
		case types.RoleUser:
			users++
		case types.RoleSystem, types.RoleAssistant:
		default:
			return apperr.BadRequest("messages[%d]: unknown role %q", i, msg.Role)
		}
	}
	if users == 0 {
		return apperr.BadRequest("messages must contain a user turn")
	}
	return nil
}

func validateFormat(f string) error {
	switch f {
	case "", "json":
		return nil
	default:
		return apperr.BadRequest("unsupported format %q", f)
	}
}

// run loads the model if needed, waits for exclusive access, and generates.
//
// Policy for interrupted generations: the GenerateTimeout firing yields the
// partial text with done_reason "timeout"; a backend failure after some output
// yields the partial text with done_reason "error"; a caller cancellation or a
// failure before any output is returned as an error.
func (m *Manager) run(ctx context.Context, kind, id string, in engine.Input, opts *types.Options, emit engine.Emit) (outcome, error) {
	start := time.Now()
	m.publish(Event{Name: "ensure_start", ModelID: id, Fields: map[string]any{"kind": kind}})
	genCtx := ctx
	if m.generateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, m.generateTimeout)
		defer cancel()
	}
	inst, loaded, release, err := m.table.EnsureAcquired(ctx, genCtx, id)
	if err != nil {
		switch {
		case apperr.Is(err, apperr.KindLoadFailure):
			modelLoadsTotal.WithLabelValues("error").Inc()
			m.publish(Event{Name: "load_failed", ModelID: id, Fields: map[string]any{"error": err.Error()}})
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return outcome{}, apperr.Busy(id)
		}
		return outcome{}, err
	}
	var out outcome
	if loaded {
		out.loadDuration = time.Since(start)
	}
	res, err := func() (engine.Result, error) {
		defer release()
		return m.engine.Generate(genCtx, inst.Runtime(), in, inst.Options.Merge(opts), emit)
	}()
	out.res = res
	out.total = time.Since(start)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return outcome{}, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) && genCtx.Err() != nil:
		out.res.DoneReason = types.DoneTimeout
		err = nil
	case apperr.Is(err, apperr.KindInferenceBackendFailure) && res.Text != "":
		out.res.DoneReason = types.DoneError
		out.partialErr = err
		m.log.Warn().Err(err).Str("model", id).Int("eval_count", res.EvalCount).Msg("generation failed after partial output")
		err = nil
	}
	if err != nil {
		m.publish(Event{Name: "generate_failed", ModelID: id, Fields: map[string]any{"kind": kind, "error": err.Error()}})
		return outcome{}, err
	}

	generationsTotal.WithLabelValues(kind, out.res.DoneReason).Inc()
	generatedTokensTotal.Add(float64(out.res.EvalCount))
	generationDuration.WithLabelValues(kind).Observe(out.total.Seconds())
	m.publish(Event{Name: "generate_done", ModelID: id, Fields: map[string]any{
		"kind": kind, "done_reason": out.res.DoneReason, "eval_count": out.res.EvalCount, "dur_ms": out.total.Milliseconds(),
	}})
	return out, nil
}

// metrics assembles the reported counters. Prompt-eval and eval durations are
// estimated from the engine's total by engine.EstimateSplit.
func (o outcome) metrics() types.Metrics {
	promptEval, eval := engine.EstimateSplit(o.res.TotalDuration)
	return types.Metrics{
		TotalDuration:      o.total,
		LoadDuration:       o.loadDuration,
		PromptEvalCount:    o.res.PromptTokens,
		PromptEvalDuration: promptEval,
		EvalCount:          o.res.EvalCount,
		EvalDuration:       eval,
	}
}

func now() time.Time { return time.Now().UTC() }

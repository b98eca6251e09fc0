// Package engine runs the token sampling loop over a loaded model: it encodes the
// prompt, repeatedly asks the backend for next-token logits, samples, and decodes
// the generated ids back to text. Chat prompts are rendered by RenderChatPrompt.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ollamad/internal/apperr"
	"ollamad/internal/backend"
	"ollamad/pkg/types"
)

// Runtime is the pair of backend handles a generation runs against.
type Runtime struct {
	Model     backend.Model
	Tokenizer backend.Tokenizer
}

// Input is the text to continue plus optional token ids from an earlier call.
type Input struct {
	Prompt  string
	Context []int
}

// Result describes a finished or interrupted generation.
type Result struct {
	Text string
	// Context is the full token history (prompt and generated ids) for continuation.
	Context       []int
	PromptTokens  int
	EvalCount     int
	DoneReason    string
	TotalDuration time.Duration
}

// maxPrealloc caps slice capacity reserved up front; longer runs grow by append.
const maxPrealloc = 4096

// Emit receives each newly decoded piece of text. Returning an error stops the loop.
type Emit func(delta string) error

// Engine executes generations. It is safe for concurrent use; per-model
// serialization is the caller's job.
type Engine struct {
	pool *Pool
	log  zerolog.Logger
}

func New(pool *Pool, log zerolog.Logger) *Engine {
	if pool == nil {
		pool = NewPool(0)
	}
	return &Engine{pool: pool, log: log}
}

// Generate runs one generation. On cancellation or backend failure the partial
// Result is returned together with the error.
func (e *Engine) Generate(ctx context.Context, rt Runtime, in Input, cfg Config, emit Emit) (Result, error) {
	start := time.Now()
	if rt.Model == nil {
		return Result{}, apperr.BackendFailure(errors.New("model handle is nil"))
	}
	if g, ok := rt.Model.(backend.Generator); ok {
		res, err := e.generateNative(ctx, g, rt.Tokenizer, in, cfg, emit)
		res.TotalDuration = time.Since(start)
		return res, err
	}
	if rt.Tokenizer == nil {
		return Result{}, apperr.BackendFailure(errors.New("model has no tokenizer"))
	}
	tok := rt.Tokenizer

	ids, err := tok.Encode(in.Prompt)
	if err != nil {
		return Result{}, apperr.EncodingFailure(err)
	}
	if len(ids) == 0 && len(in.Context) == 0 {
		return Result{DoneReason: types.DoneStop, TotalDuration: time.Since(start)}, nil
	}

	history := make([]int, 0, len(in.Context)+len(ids)+min(cfg.MaxTokens, maxPrealloc)+1)
	history = append(history, in.Context...)
	history = append(history, ids...)
	bos := tokenID(tok, backend.SpecialBOS, backend.DefaultBOS)
	eos := tokenID(tok, backend.SpecialEOS, backend.DefaultEOS)
	if history[0] != bos {
		history = append([]int{bos}, history...)
	}

	res := Result{PromptTokens: len(history), DoneReason: types.DoneLength}
	sampler := NewSampler(cfg)
	generated := make([]int, 0, min(cfg.MaxTokens, maxPrealloc))
	emitted := ""

	finish := func(err error) (Result, error) {
		if text, derr := tok.Decode(generated); derr == nil {
			res.Text = strings.TrimSpace(text)
		} else if err == nil {
			err = apperr.DecodingFailure(derr)
		}
		res.Context = history
		res.TotalDuration = time.Since(start)
		return res, err
	}

	for len(generated) < cfg.MaxTokens {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		logits, err := e.forward(ctx, rt.Model, history)
		if err != nil {
			if ctx.Err() != nil {
				return finish(ctx.Err())
			}
			return finish(apperr.BackendFailure(err))
		}
		next, err := sampler.Sample(logits, generated)
		if err != nil {
			return finish(apperr.BackendFailure(err))
		}
		res.EvalCount++
		if next == eos {
			res.DoneReason = types.DoneStop
			break
		}
		history = append(history, next)
		generated = append(generated, next)

		if emit == nil {
			continue
		}
		text, err := tok.Decode(generated)
		if err != nil {
			return finish(apperr.DecodingFailure(err))
		}
		if delta, ok := nextDelta(emitted, strings.TrimSpace(text)); ok {
			if err := emit(delta); err != nil {
				return finish(err)
			}
			emitted += delta
		}
	}

	res, err = finish(nil)
	if err != nil {
		return res, err
	}
	if emit != nil {
		if delta, ok := nextDelta(emitted, res.Text); ok {
			if err := emit(delta); err != nil {
				return res, err
			}
		}
	}
	e.log.Debug().Int("prompt_tokens", res.PromptTokens).Int("eval_count", res.EvalCount).
		Str("done_reason", res.DoneReason).Dur("took", res.TotalDuration).Msg("generation finished")
	return res, nil
}

// nextDelta returns the suffix of cur beyond what was already emitted. Nothing is
// emitted while the decoded text disagrees with the emitted prefix.
func nextDelta(emitted, cur string) (string, bool) {
	if len(cur) <= len(emitted) || !strings.HasPrefix(cur, emitted) {
		return "", false
	}
	return cur[len(emitted):], true
}

func (e *Engine) forward(ctx context.Context, m backend.Model, history []int) (logits []float32, err error) {
	err = e.pool.Do(ctx, func() (ferr error) {
		defer func() {
			if r := recover(); r != nil {
				ferr = fmt.Errorf("backend panic: %v", r)
			}
		}()
		logits, ferr = m.Forward(ctx, history, len(history))
		return ferr
	})
	return logits, err
}

// generateNative hands the loop to a backend that samples on its own. The backend
// works on text, so a token context is decoded and prepended to the prompt, and the
// returned context is re-encoded with tok. Models without a tokenizer cannot be
// continued.
func (e *Engine) generateNative(ctx context.Context, g backend.Generator, tok backend.Tokenizer, in Input, cfg Config, emit Emit) (res Result, err error) {
	prompt := in.Prompt
	if len(in.Context) > 0 {
		if tok == nil {
			return Result{}, apperr.BadRequest("context is not supported: model has no tokenizer")
		}
		prev, derr := tok.Decode(in.Context)
		if derr != nil {
			return Result{}, apperr.BadRequest("invalid context: %v", derr)
		}
		prompt = joinText(prev, prompt)
	}
	params := backend.PredictParams{
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		TopK:          cfg.TopK,
		MaxTokens:     cfg.MaxTokens,
		RepeatPenalty: cfg.RepeatPenalty,
		Seed:          cfg.Seed,
	}
	var (
		b       strings.Builder
		emitErr error
		started bool
	)
	onPiece := func(piece string) bool {
		b.WriteString(piece)
		if emit == nil {
			return true
		}
		if !started {
			piece = strings.TrimLeft(piece, " \t\r\n")
			if piece == "" {
				return true
			}
			started = true
		}
		if emitErr = emit(piece); emitErr != nil {
			return false
		}
		return true
	}

	var nr backend.NativeResult
	err = e.pool.Do(ctx, func() (gerr error) {
		defer func() {
			if r := recover(); r != nil {
				gerr = fmt.Errorf("backend panic: %v", r)
			}
		}()
		nr, gerr = g.Generate(ctx, prompt, params, onPiece)
		return gerr
	})

	text := nr.Text
	if text == "" {
		text = b.String()
	}
	res = Result{
		Text:         strings.TrimSpace(text),
		PromptTokens: nr.PromptTokens,
		EvalCount:    nr.Tokens,
		DoneReason:   types.DoneLength,
	}
	if nr.HitEOS {
		res.DoneReason = types.DoneStop
	}
	res.Context = e.nativeContext(tok, prompt, res.Text)
	switch {
	case emitErr != nil:
		return res, emitErr
	case ctx.Err() != nil:
		return res, ctx.Err()
	case err != nil:
		return res, apperr.BackendFailure(err)
	}
	return res, nil
}

// nativeContext encodes prompt and reply as a continuation context. It returns nil
// without a tokenizer or when the text cannot be encoded.
func (e *Engine) nativeContext(tok backend.Tokenizer, prompt, reply string) []int {
	if tok == nil {
		return nil
	}
	ids, err := tok.Encode(joinText(prompt, reply))
	if err != nil {
		e.log.Warn().Err(err).Msg("context not returned; text outside tokenizer vocabulary")
		return nil
	}
	if bos := tokenID(tok, backend.SpecialBOS, backend.DefaultBOS); len(ids) == 0 || ids[0] != bos {
		ids = append([]int{bos}, ids...)
	}
	return ids
}

func joinText(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

func tokenID(t backend.Tokenizer, s backend.Special, def int) int {
	if id, ok := t.TokenID(s); ok {
		return id
	}
	return def
}

//go:build llama

package backend

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaBuilt reports whether this binary was compiled with llama.cpp support.
const LlamaBuilt = true

// llamaLoader holds defaults used to initialize a llama.cpp context.
type llamaLoader struct {
	ctxSize int
	threads int
}

// NewLlamaLoader returns a loader backed by the in-process llama.cpp bindings.
// Sampling and prompt tokenization happen inside llama.cpp. A tokenizer sidecar,
// when the record has one, is returned only to encode and decode the token
// context that lets a generate call continue an earlier one; the bindings expose
// no detokenizer for that.
func NewLlamaLoader(ctxSize, threads int) Loader {
	return &llamaLoader{ctxSize: ctxSize, threads: threads}
}

func (l *llamaLoader) Load(ctx context.Context, spec LoadSpec) (Model, Tokenizer, error) {
	if strings.TrimSpace(spec.WeightsPath) == "" {
		return nil, nil, errors.New("weights path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ctxSize := zn(spec.ContextSize, l.ctxSize)
	threads := zn(spec.Threads, l.threads)
	m, err := llama.New(spec.WeightsPath, llama.SetContext(zn(ctxSize, 2048)))
	if err != nil {
		return nil, nil, err
	}
	// context round-trips only; generation never reads it
	var tok Tokenizer
	if spec.TokenizerPath != "" {
		if tok, err = LoadWordLevel(spec.TokenizerPath); err != nil {
			m.Free()
			return nil, nil, err
		}
	}
	return &llamaModel{model: m, threads: threads}, tok, nil
}

// llamaModel owns the loaded llama.cpp context. Sampling happens natively.
type llamaModel struct {
	model   *llama.LLama
	threads int
}

var errNativeOnly = errors.New("llama.cpp models sample natively; use Generate")

func (m *llamaModel) Forward(context.Context, []int, int) ([]float32, error) {
	return nil, errNativeOnly
}

func (m *llamaModel) Generate(ctx context.Context, prompt string, p PredictParams, onPiece func(string) bool) (NativeResult, error) {
	if m.model == nil {
		return NativeResult{}, errors.New("llama model not initialized")
	}
	var res NativeResult
	// Bridge token streaming to onPiece and respect cancellation
	m.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		res.Tokens++
		return onPiece(tok)
	})
	text, err := m.model.Predict(prompt, predictOptions(p, m.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, err
	}
	res.Text = text
	// the bindings do not expose prompt token counts
	res.PromptTokens = len(prompt) / 4
	res.HitEOS = res.Tokens < p.MaxTokens
	return res, nil
}

func (m *llamaModel) Close() error {
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v float64, def float32) float32 {
	if v > 0 {
		return float32(v)
	}
	return def
}

// predictOptions converts sampling params into go-llama.cpp options.
func predictOptions(p PredictParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, p.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(p.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(p.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(p.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(p.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if p.Seed != nil {
		po = append(po, llama.SetSeed(int(*p.Seed)))
	}
	return po
}

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ollamad/internal/apperr"
	"ollamad/internal/backend"
	"ollamad/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ids: 0 <unk>, 1 <s>, 2 </s>, 3 a, 4 b, 5 c, 6 d, 7 e
var vocab = []string{"<unk>", "<s>", "</s>", "a", "b", "c", "d", "e"}

// scriptModel emits the tokens of seq in order, cycling when exhausted.
type scriptModel struct {
	mu        sync.Mutex
	seq       []int
	calls     int
	histories [][]int
	failAt    int // 1-based call that errors; 0 = never
	panicAt   int
}

func (m *scriptModel) Forward(_ context.Context, history []int, pos int) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.histories = append(m.histories, append([]int(nil), history[:pos]...))
	if m.calls == m.failAt {
		return nil, errors.New("device lost")
	}
	if m.calls == m.panicAt {
		panic("kernel fault")
	}
	logits := make([]float32, len(vocab))
	logits[m.seq[(m.calls-1)%len(m.seq)]] = 100
	return logits, nil
}

func (m *scriptModel) Close() error { return nil }

func newRuntime(seq ...int) (Runtime, *scriptModel) {
	m := &scriptModel{seq: seq}
	return Runtime{Model: m, Tokenizer: backend.NewWordLevel(vocab)}, m
}

func newEngine() *Engine { return New(NewPool(2), zerolog.Nop()) }

func cfgWith(maxTokens int) Config {
	c := Defaults()
	c.MaxTokens = maxTokens
	return c
}

func TestGenerateStopsAtMaxTokens(t *testing.T) {
	rt, m := newRuntime(3, 4, 5)
	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a b"}, cfgWith(5), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.EvalCount)
	assert.Equal(t, 5, m.calls)
	assert.Equal(t, types.DoneLength, res.DoneReason)
	assert.Equal(t, "a b c a b", res.Text)
	assert.Equal(t, 3, res.PromptTokens) // BOS + 2
	assert.Len(t, res.Context, 3+5)
}

func TestGenerateStopsAtEOS(t *testing.T) {
	rt, m := newRuntime(3, 4, backend.DefaultEOS, 5)
	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a"}, cfgWith(10), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, m.calls)
	assert.Equal(t, 3, res.EvalCount)
	assert.Equal(t, types.DoneStop, res.DoneReason)
	assert.Equal(t, "a b", res.Text)
	assert.NotContains(t, res.Context, backend.DefaultEOS)
}

func TestGenerateInsertsBOSOnce(t *testing.T) {
	rt, m := newRuntime(3)
	_, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "c"}, cfgWith(1), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, m.histories[0])

	rt, m = newRuntime(3)
	_, err = newEngine().Generate(context.Background(), rt, Input{Prompt: "<s> c"}, cfgWith(1), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, m.histories[0])
}

func TestGeneratePrependsContext(t *testing.T) {
	rt, m := newRuntime(3)
	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "b", Context: []int{1, 3}}, cfgWith(1), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, m.histories[0])
	assert.Equal(t, []int{1, 3, 4, 3}, res.Context)
}

func TestGenerateEmptyPrompt(t *testing.T) {
	rt, m := newRuntime(3)
	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "   "}, cfgWith(4), nil)
	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, 0, res.EvalCount)
	assert.Equal(t, 0, m.calls)
}

func TestGenerateEncodingFailure(t *testing.T) {
	rt := Runtime{Model: &scriptModel{seq: []int{0}}, Tokenizer: backend.NewWordLevel([]string{"x", "y"})}
	_, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "zzz"}, cfgWith(2), nil)
	assert.True(t, apperr.Is(err, apperr.KindEncodingFailure), "got %v", err)
}

func TestGenerateHugeMaxTokensDoesNotPreallocate(t *testing.T) {
	cfg := cfgWith(1 << 50)
	require.NoError(t, cfg.Validate())
	rt, m := newRuntime(3, 4, backend.DefaultEOS)
	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a"}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "a b", res.Text)
	assert.Equal(t, 3, m.calls)
	assert.Equal(t, types.DoneStop, res.DoneReason)
}

func TestGenerateStreamsDeltas(t *testing.T) {
	rt, _ := newRuntime(3, 4, 5, 6, backend.DefaultEOS)
	var deltas []string
	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a"}, cfgWith(10), func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", " b", " c", " d"}, deltas)
	assert.Equal(t, res.Text, strings.Join(deltas, ""))
}

func TestGenerateCancellationReturnsPartial(t *testing.T) {
	rt, m := newRuntime(3, 4, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, err := newEngine().Generate(ctx, rt, Input{Prompt: "a"}, cfgWith(50), func(string) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "a", res.Text)
	assert.Equal(t, 1, m.calls)
}

func TestGenerateBackendErrorReturnsPartial(t *testing.T) {
	rt, m := newRuntime(3, 4)
	m.failAt = 3
	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a"}, cfgWith(10), nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInferenceBackendFailure))
	assert.Equal(t, "a b", res.Text)
	assert.Equal(t, 2, res.EvalCount)
}

func TestGenerateRecoversBackendPanic(t *testing.T) {
	rt, m := newRuntime(3)
	m.panicAt = 1
	_, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a"}, cfgWith(3), nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInferenceBackendFailure))
	assert.Contains(t, err.Error(), "kernel fault")
}

func TestGenerateEmitErrorStops(t *testing.T) {
	rt, m := newRuntime(3, 4, 5)
	boom := errors.New("client gone")
	_, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a"}, cfgWith(10), func(string) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.calls)
}

// nativeModel samples on its own, like the llama.cpp binding.
type nativeModel struct {
	pieces  []string
	eos     bool
	prompts []string
}

func (n *nativeModel) Forward(context.Context, []int, int) ([]float32, error) {
	return nil, errors.New("native only")
}
func (n *nativeModel) Close() error { return nil }

func (n *nativeModel) Generate(ctx context.Context, prompt string, p backend.PredictParams, onPiece func(string) bool) (backend.NativeResult, error) {
	n.prompts = append(n.prompts, prompt)
	res := backend.NativeResult{PromptTokens: len(prompt) / 4, HitEOS: n.eos}
	for _, piece := range n.pieces {
		if res.Tokens >= p.MaxTokens {
			res.HitEOS = false
			break
		}
		res.Tokens++
		res.Text += piece
		if !onPiece(piece) {
			break
		}
	}
	return res, ctx.Err()
}

func TestGenerateNativePath(t *testing.T) {
	rt := Runtime{Model: &nativeModel{pieces: []string{" Hello", ",", " world"}, eos: true}}
	var got strings.Builder
	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "say hello please"}, cfgWith(8), func(d string) error {
		got.WriteString(d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", res.Text)
	assert.Equal(t, "Hello, world", got.String())
	assert.Equal(t, 3, res.EvalCount)
	assert.Equal(t, 4, res.PromptTokens)
	assert.Equal(t, types.DoneStop, res.DoneReason)

	res, err = newEngine().Generate(context.Background(), rt, Input{Prompt: "x"}, cfgWith(2), nil)
	require.NoError(t, err)
	assert.Equal(t, types.DoneLength, res.DoneReason)
	assert.Equal(t, "Hello,", res.Text)
}

func TestGenerateWithoutTokenizer(t *testing.T) {
	_, err := newEngine().Generate(context.Background(), Runtime{Model: &scriptModel{seq: []int{3}}}, Input{Prompt: "a"}, cfgWith(1), nil)
	assert.True(t, apperr.Is(err, apperr.KindInferenceBackendFailure))
}

func TestGenerateNativeContinuesContext(t *testing.T) {
	model := &nativeModel{pieces: []string{" c", " d"}, eos: true}
	rt := Runtime{Model: model, Tokenizer: backend.NewWordLevel(vocab)}

	first, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a b"}, cfgWith(8), nil)
	require.NoError(t, err)
	assert.Equal(t, "c d", first.Text)
	assert.Equal(t, []int{1, 3, 4, 5, 6}, first.Context)

	next, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "e", Context: first.Context}, cfgWith(8), nil)
	require.NoError(t, err)
	require.Len(t, model.prompts, 2)
	assert.Equal(t, "a b c d e", model.prompts[1])
	assert.Equal(t, []int{1, 3, 4, 5, 6, 7, 5, 6}, next.Context)
}

func TestGenerateNativeContextWithoutTokenizer(t *testing.T) {
	model := &nativeModel{pieces: []string{" c"}, eos: true}
	rt := Runtime{Model: model}

	res, err := newEngine().Generate(context.Background(), rt, Input{Prompt: "a"}, cfgWith(4), nil)
	require.NoError(t, err)
	assert.Nil(t, res.Context)

	_, err = newEngine().Generate(context.Background(), rt, Input{Prompt: "a", Context: []int{1, 3}}, cfgWith(4), nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "got %v", err)
	assert.Len(t, model.prompts, 1)

	rt.Tokenizer = backend.NewWordLevel(vocab)
	_, err = newEngine().Generate(context.Background(), rt, Input{Prompt: "a", Context: []int{99}}, cfgWith(4), nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "got %v", err)
}

// Package backend defines the capabilities the generation engine consumes: a
// tokenizer, a model that computes next-token logits, and loaders that materialize
// both from files on disk. Loaders are selected by model family so that weight
// formats stay pluggable.
package backend

import (
	"context"
	"errors"
	"sync"

	"ollamad/pkg/types"
)

// Special names a tokenizer control symbol.
type Special int

const (
	SpecialBOS Special = iota
	SpecialEOS
	SpecialUNK
)

func (s Special) String() string {
	switch s {
	case SpecialBOS:
		return "<s>"
	case SpecialEOS:
		return "</s>"
	case SpecialUNK:
		return "<unk>"
	default:
		return ""
	}
}

// Default ids used when a tokenizer does not define BOS/EOS.
const (
	DefaultBOS = 1
	DefaultEOS = 2
)

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	TokenID(s Special) (int, bool)
}

// Model computes next-token logits for a token history. pos is the number of
// tokens in history that are valid; the returned slice is indexed by token id.
type Model interface {
	Forward(ctx context.Context, history []int, pos int) ([]float32, error)
	Close() error
}

// PredictParams are the sampling parameters handed to a native Generator.
type PredictParams struct {
	Temperature   float64
	TopP          float64
	TopK          int
	MaxTokens     int
	RepeatPenalty float64
	Seed          *int64
}

// NativeResult summarizes a generation run entirely inside the backend.
type NativeResult struct {
	Text         string
	PromptTokens int
	Tokens       int
	HitEOS       bool
}

// Generator is implemented by models whose runtime owns the sampling loop (for
// example llama.cpp). onPiece returning false stops generation.
type Generator interface {
	Generate(ctx context.Context, prompt string, p PredictParams, onPiece func(string) bool) (NativeResult, error)
}

// LoadSpec describes what to materialize.
type LoadSpec struct {
	ID            string
	Family        types.Family
	WeightsPath   string
	TokenizerPath string
	ContextSize   int
	Threads       int
}

// Loader materializes a model and its tokenizer. The tokenizer may be nil when the
// returned Model implements Generator.
type Loader interface {
	Load(ctx context.Context, spec LoadSpec) (Model, Tokenizer, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, spec LoadSpec) (Model, Tokenizer, error)

func (f LoaderFunc) Load(ctx context.Context, spec LoadSpec) (Model, Tokenizer, error) {
	return f(ctx, spec)
}

// ErrNoLoader is returned when no loader is registered for a family and no
// fallback exists.
var ErrNoLoader = errors.New("no loader registered for model family")

// Registry maps model families to loaders.
type Registry struct {
	mu       sync.RWMutex
	loaders  map[types.Family]Loader
	fallback Loader
}

func NewRegistry() *Registry {
	return &Registry{loaders: make(map[types.Family]Loader)}
}

// Register installs l for family f.
func (r *Registry) Register(f types.Family, l Loader) {
	r.mu.Lock()
	r.loaders[f] = l
	r.mu.Unlock()
}

// SetFallback installs the loader used for families without a dedicated one.
func (r *Registry) SetFallback(l Loader) {
	r.mu.Lock()
	r.fallback = l
	r.mu.Unlock()
}

// Lookup returns the loader for f.
func (r *Registry) Lookup(f types.Family) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.loaders[f]; ok {
		return l, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, ErrNoLoader
}

// Load resolves the loader for spec.Family and runs it.
func (r *Registry) Load(ctx context.Context, spec LoadSpec) (Model, Tokenizer, error) {
	l, err := r.Lookup(spec.Family)
	if err != nil {
		return nil, nil, err
	}
	return l.Load(ctx, spec)
}

// DefaultRegistry returns a registry whose fallback is the llama.cpp loader. In
// builds without the `llama` tag that loader reports the runtime as unavailable.
func DefaultRegistry(contextSize, threads int) *Registry {
	r := NewRegistry()
	r.SetFallback(NewLlamaLoader(contextSize, threads))
	return r
}

//go:build !llama

package backend

// This file provides a no-CGO stub for the llama.cpp loader. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real loader lives in llama.go (tagged 'llama').

import (
	"context"
	"errors"
)

// LlamaBuilt reports whether this binary was compiled with llama.cpp support.
const LlamaBuilt = false

// ErrLlamaNotBuilt is returned by the stub loader.
var ErrLlamaNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

type llamaLoader struct {
	ctxSize int
	threads int
}

// NewLlamaLoader returns a loader that refuses to load weights in this build.
func NewLlamaLoader(ctxSize, threads int) Loader {
	return &llamaLoader{ctxSize: ctxSize, threads: threads}
}

func (l *llamaLoader) Load(ctx context.Context, spec LoadSpec) (Model, Tokenizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return nil, nil, ErrLlamaNotBuilt
}

package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many backend forward passes run at once across all models.
// Callers block in Do until a slot frees up or ctx is done.
type Pool struct {
	size int64
	sem  *semaphore.Weighted
}

// NewPool returns a pool with n slots; n <= 0 means runtime.NumCPU().
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{size: int64(n), sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn while holding one slot.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Size reports the number of slots.
func (p *Pool) Size() int { return int(p.size) }

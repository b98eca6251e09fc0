package instance

import (
	"context"
	"time"

	"ollamad/internal/apperr"
)

// WithExclusiveAccess loads id if needed and runs fn while holding the instance's
// single in-flight slot. The slot is released on every exit path, panics included.
func (t *Table) WithExclusiveAccess(ctx context.Context, id string, fn func(*Instance) error) error {
	inst, _, release, err := t.EnsureAcquired(ctx, ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return fn(inst)
}

// Acquire reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (t *Table) Acquire(ctx context.Context, inst *Instance) (func(), error) {
	noop := func() {}
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return noop, err
	}
	select {
	case <-inst.done:
		return noop, apperr.ModelNotFound(inst.ID)
	default:
	}

	// Try to reserve a queue slot with timeout
	timer := time.NewTimer(t.cfg.LockTimeout)
	defer timer.Stop()
	select {
	case inst.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return noop, ctx.Err()
	case <-inst.done:
		return noop, apperr.ModelNotFound(inst.ID)
	case <-timer.C:
		return noop, apperr.Busy(inst.ID)
	}

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-inst.queueCh
		}
	}()
	select {
	case inst.genCh <- struct{}{}:
	case <-ctx.Done():
		return noop, ctx.Err()
	case <-inst.done:
		return noop, apperr.ModelNotFound(inst.ID)
	case <-timer.C:
		return noop, apperr.Busy(inst.ID)
	}
	// the instance may have been unloaded while we waited
	select {
	case <-inst.done:
		<-inst.genCh
		return noop, apperr.ModelNotFound(inst.ID)
	default:
	}
	acquired = true
	inst.touch()
	return func() { <-inst.genCh; <-inst.queueCh; inst.touch() }, nil
}

// Package instance owns the set of loaded models. Each model id maps to at most one
// Instance; concurrent loads of the same id collapse into one, generations on the
// same instance are serialized, and different instances run fully in parallel.
package instance

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"ollamad/internal/apperr"
	"ollamad/internal/backend"
	"ollamad/internal/engine"
	"ollamad/internal/registry"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultLockTimeout   = 30 * time.Second
	defaultDrainTimeout  = 5 * time.Second

	maxAcquireAttempts = 3
)

// Config encapsulates the tunables of a Table.
type Config struct {
	Store    registry.Store
	Backends backend.Loader
	// ContextSize and Threads are passed to loaders; 0 lets the loader decide.
	ContextSize int
	Threads     int
	// MaxQueueDepth bounds callers waiting on one instance.
	MaxQueueDepth int
	// LockTimeout bounds the wait for exclusive access.
	LockTimeout time.Duration
	// DrainTimeout bounds how long Unload waits for an in-flight generation.
	DrainTimeout time.Duration
	// BudgetBytes caps the summed weight size of loaded instances; 0 disables.
	BudgetBytes int64
	Defaults    engine.Config
	Logger      zerolog.Logger

	OnLoad   func(inst *Instance, took time.Duration)
	OnUnload func(inst *Instance, reason string)
}

// Table is the model instance table.
type Table struct {
	cfg       Config
	instances *xsync.MapOf[string, *Instance]
	loads     singleflight.Group
	evictMu   sync.Mutex
	closed    atomic.Bool
}

func New(cfg Config) *Table {
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Defaults == (engine.Config{}) {
		cfg.Defaults = engine.Defaults()
	}
	return &Table{cfg: cfg, instances: xsync.NewMapOf[string, *Instance]()}
}

// EnsureLoaded returns the live instance for id, loading it on first use. loaded
// reports whether this call waited on a load. The load itself is detached from ctx:
// a caller giving up does not abort a load other callers share.
func (t *Table) EnsureLoaded(ctx context.Context, id string) (*Instance, bool, error) {
	if inst, ok := t.instances.Load(id); ok {
		inst.touch()
		return inst, false, nil
	}
	if t.closed.Load() {
		return nil, false, apperr.E(apperr.KindLoadFailure, "instance.ensure", "instance table closed", nil)
	}
	ch := t.loads.DoChan(id, func() (any, error) {
		return t.load(context.WithoutCancel(ctx), id)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, true, r.Err
		}
		inst := r.Val.(*Instance)
		inst.touch()
		return inst, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (t *Table) load(ctx context.Context, id string) (*Instance, error) {
	if inst, ok := t.instances.Load(id); ok {
		return inst, nil
	}
	rec, ok, err := t.cfg.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ModelNotFound(id)
	}
	log := t.cfg.Logger.With().Str("model", id).Logger()
	if t.cfg.BudgetBytes > 0 {
		t.makeRoom(rec.SizeBytes)
	}
	start := time.Now()
	log.Debug().Str("path", rec.Path).Str("family", string(rec.Family)).Msg("loading model")
	if t.cfg.Backends == nil {
		return nil, apperr.LoadFailure(id, backend.ErrNoLoader)
	}
	m, tok, err := t.cfg.Backends.Load(ctx, backend.LoadSpec{
		ID:            rec.ID,
		Family:        rec.Family,
		WeightsPath:   rec.Path,
		TokenizerPath: rec.TokenizerPath,
		ContextSize:   t.cfg.ContextSize,
		Threads:       t.cfg.Threads,
	})
	if err != nil {
		log.Warn().Err(err).Msg("model load failed")
		return nil, apperr.LoadFailure(id, err)
	}
	inst := newInstance(rec, m, tok, t.cfg.Defaults, uuid.NewString(), t.cfg.MaxQueueDepth)
	if t.closed.Load() {
		t.closeInstance(inst)
		return nil, apperr.E(apperr.KindLoadFailure, "instance.ensure", "instance table closed", nil)
	}
	t.instances.Store(id, inst)
	// Close may have swept the table between the check and the store.
	if t.closed.Load() {
		t.unload(id, "shutdown")
		return nil, apperr.E(apperr.KindLoadFailure, "instance.ensure", "instance table closed", nil)
	}
	took := time.Since(start)
	log.Info().Str("session", inst.Session).Dur("took", took).Msg("model loaded")
	if t.cfg.OnLoad != nil {
		t.cfg.OnLoad(inst, took)
	}
	return inst, nil
}

// EnsureAcquired loads id if needed and then reserves its in-flight slot. ctx
// bounds the load wait and waitCtx the slot wait. When the instance is unloaded
// between the two steps (evicted to make room for another model, or idle) the
// model is loaded again, up to maxAcquireAttempts times.
func (t *Table) EnsureAcquired(ctx, waitCtx context.Context, id string) (*Instance, bool, func(), error) {
	var loadedAny bool
	for attempt := 1; ; attempt++ {
		inst, loaded, err := t.EnsureLoaded(ctx, id)
		loadedAny = loadedAny || loaded
		if err != nil {
			return nil, loadedAny, nil, err
		}
		release, err := t.Acquire(waitCtx, inst)
		if err == nil {
			return inst, loadedAny, release, nil
		}
		if !inst.unloaded() || attempt >= maxAcquireAttempts || t.closed.Load() {
			return nil, loadedAny, nil, err
		}
		t.cfg.Logger.Debug().Str("model", id).Int("attempt", attempt).Msg("instance unloaded before acquire; reloading")
	}
}

// Get returns the live instance for id without loading it.
func (t *Table) Get(id string) (*Instance, bool) {
	return t.instances.Load(id)
}

// Len reports how many instances are loaded.
func (t *Table) Len() int { return t.instances.Size() }

// ListLoaded returns the loaded instances ordered by id.
func (t *Table) ListLoaded() []*Instance {
	out := make([]*Instance, 0, t.instances.Size())
	t.instances.Range(func(_ string, inst *Instance) bool {
		out = append(out, inst)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unload removes id from the table and releases its handles. It reports whether an
// instance was present; unloading an absent id is a no-op.
func (t *Table) Unload(id string) bool {
	return t.unload(id, "unload")
}

func (t *Table) unload(id, reason string) bool {
	inst, ok := t.instances.LoadAndDelete(id)
	if !ok {
		return false
	}
	close(inst.done)
	t.drain(inst)
	t.cfg.Logger.Info().Str("model", id).Str("reason", reason).Msg("model unloaded")
	if t.cfg.OnUnload != nil {
		t.cfg.OnUnload(inst, reason)
	}
	return true
}

// drain waits up to DrainTimeout for the in-flight generation, then closes the
// handles. When the wait times out the close is deferred until that generation
// releases its slot.
func (t *Table) drain(inst *Instance) {
	timer := time.NewTimer(t.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case inst.genCh <- struct{}{}:
		t.closeInstance(inst)
	case <-timer.C:
		t.cfg.Logger.Warn().Str("model", inst.ID).Dur("drain_timeout", t.cfg.DrainTimeout).
			Msg("generation still running; closing after it finishes")
		go func() {
			inst.genCh <- struct{}{}
			t.closeInstance(inst)
		}()
	}
}

func (t *Table) closeInstance(inst *Instance) {
	if err := inst.closeHandles(); err != nil {
		t.cfg.Logger.Warn().Err(err).Str("model", inst.ID).Msg("close model handles")
	}
}

// Close unloads every instance and rejects further loads.
func (t *Table) Close() {
	t.closed.Store(true)
	for _, inst := range t.ListLoaded() {
		t.unload(inst.ID, "shutdown")
	}
}

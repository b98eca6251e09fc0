package instance

import (
	"sync"
	"sync/atomic"
	"time"

	"ollamad/internal/backend"
	"ollamad/internal/engine"
	"ollamad/pkg/types"
)

// Instance is a loaded model ready to run generations. Handles are owned by the
// instance and released when it is unloaded.
type Instance struct {
	ID        string
	Record    types.Model
	Model     backend.Model
	Tokenizer backend.Tokenizer
	// Options is the configuration generations start from before request overrides.
	Options  engine.Config
	Session  string
	LoadedAt time.Time

	lastUsed atomic.Int64
	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
	done    chan struct{} // closed when the instance leaves the table

	closeOnce sync.Once
	closeErr  error
}

func newInstance(rec types.Model, m backend.Model, tok backend.Tokenizer, opts engine.Config, session string, queueDepth int) *Instance {
	now := time.Now()
	inst := &Instance{
		ID:        rec.ID,
		Record:    rec,
		Model:     m,
		Tokenizer: tok,
		Options:   opts,
		Session:   session,
		LoadedAt:  now,
		genCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, queueDepth),
		done:      make(chan struct{}),
	}
	inst.lastUsed.Store(now.UnixNano())
	return inst
}

// Runtime returns the handles the engine needs.
func (i *Instance) Runtime() engine.Runtime {
	return engine.Runtime{Model: i.Model, Tokenizer: i.Tokenizer}
}

func (i *Instance) LastUsed() time.Time { return time.Unix(0, i.lastUsed.Load()) }

func (i *Instance) touch() { i.lastUsed.Store(time.Now().UnixNano()) }

// QueueLen counts callers holding a queue slot, including the one in flight.
func (i *Instance) QueueLen() int      { return len(i.queueCh) }
func (i *Instance) Inflight() int      { return len(i.genCh) }
func (i *Instance) MaxQueueDepth() int { return cap(i.queueCh) }

// SizeBytes is the weight file size used for budget accounting.
func (i *Instance) SizeBytes() int64 { return i.Record.SizeBytes }

func (i *Instance) idle() bool { return i.Inflight() == 0 && i.QueueLen() == 0 }

// unloaded reports whether the instance has left the table.
func (i *Instance) unloaded() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

// Status projects the instance for /api/ps.
func (i *Instance) Status() types.RunningModel {
	return types.RunningModel{
		Model:         i.ID,
		Session:       i.Session,
		LoadedAt:      i.LoadedAt.UTC(),
		LastUsed:      i.LastUsed().UTC(),
		SizeBytes:     i.Record.SizeBytes,
		QueueLen:      i.QueueLen(),
		Inflight:      i.Inflight(),
		MaxQueueDepth: i.MaxQueueDepth(),
	}
}

func (i *Instance) closeHandles() error {
	i.closeOnce.Do(func() {
		if i.Model != nil {
			i.closeErr = i.Model.Close()
		}
	})
	return i.closeErr
}

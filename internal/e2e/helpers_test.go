package e2e

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ollamad/internal/backend"
	"ollamad/internal/httpapi"
	"ollamad/internal/manager"
	"ollamad/internal/registry"
	"ollamad/pkg/types"
)

var vocab = []string{"<unk>", "<s>", "</s>", "hello", "world"}

// gatedModel emits "hello world" then EOS. Every forward pass waits on gate.
type gatedModel struct {
	gate    chan struct{}
	started chan struct{}
	once    sync.Once

	mu    sync.Mutex
	calls int
}

func newGatedModel(open bool) *gatedModel {
	g := &gatedModel{gate: make(chan struct{}), started: make(chan struct{})}
	if open {
		close(g.gate)
	}
	return g
}

func (g *gatedModel) Forward(ctx context.Context, _ []int, _ int) ([]float32, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	logits := make([]float32, len(vocab))
	switch (g.calls-1)%3 + 1 {
	case 1:
		logits[3] = 100
	case 2:
		logits[4] = 100
	default:
		logits[backend.DefaultEOS] = 100
	}
	return logits, nil
}

func (g *gatedModel) Close() error { return nil }

type staticLoader struct{ model *gatedModel }

func (l staticLoader) Load(context.Context, backend.LoadSpec) (backend.Model, backend.Tokenizer, error) {
	return l.model, backend.NewWordLevel(vocab), nil
}

// newServer wires a real manager behind the real router with a scripted backend.
func newServer(t *testing.T, model *gatedModel, mut func(*manager.ManagerConfig)) (*httptest.Server, *manager.Manager) {
	t.Helper()
	cfg := manager.ManagerConfig{
		Store: registry.NewMemoryStore(
			types.Model{ID: "alpha", Name: "Alpha", Family: types.FamilyLlama, SizeBytes: 1 << 20},
			types.Model{ID: "beta", Name: "Beta", Family: types.FamilyMistral, SizeBytes: 1 << 20},
		),
		Backends:     staticLoader{model: model},
		LockTimeout:  2 * time.Second,
		DrainTimeout: time.Second,
		Workers:      2,
	}
	if mut != nil {
		mut(&cfg)
	}
	mgr := manager.NewWithConfig(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ollamad/internal/apperr"
	"ollamad/internal/backend"
	"ollamad/internal/registry"
	"ollamad/pkg/types"
)

// createModelFile creates a file of approximately sizeMB megabytes and returns its path.
func createModelFile(t *testing.T, dir, name string, sizeMB int) string {
	t.Helper()
	if sizeMB <= 0 {
		sizeMB = 1
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	// write sizeMB megabytes (use 1MiB blocks)
	block := make([]byte, 1024*1024)
	for i := 0; i < sizeMB; i++ {
		if _, err := f.Write(block); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return p
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

var testVocab = []string{"<unk>", "<s>", "</s>", "hello", "world"}

// fakeModel cycles through seq; eosAfter > 0 samples EOS on that call.
type fakeModel struct {
	mu       sync.Mutex
	seq      []int
	calls    int
	eosAfter int
	failAt   int
	delay    time.Duration
}

func (f *fakeModel) Forward(ctx context.Context, _ []int, _ int) ([]float32, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("device lost")
	}
	logits := make([]float32, len(testVocab))
	next := f.seq[(f.calls-1)%len(f.seq)]
	if f.calls == f.eosAfter {
		next = backend.DefaultEOS
	}
	logits[next] = 100
	return logits, nil
}

func (f *fakeModel) Close() error { return nil }

// fakeBackends hands out models built by newModel and counts loads.
type fakeBackends struct {
	mu       sync.Mutex
	loads    int
	newModel func() *fakeModel
	fail     error
}

func (b *fakeBackends) Load(context.Context, backend.LoadSpec) (backend.Model, backend.Tokenizer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	if b.fail != nil {
		return nil, nil, b.fail
	}
	mk := b.newModel
	if mk == nil {
		mk = func() *fakeModel { return &fakeModel{seq: []int{3, 4}, eosAfter: 5} }
	}
	return mk(), backend.NewWordLevel(testVocab), nil
}

func (b *fakeBackends) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads
}

func newTestManager(t *testing.T, be *fakeBackends, mut func(*ManagerConfig), models ...types.Model) *Manager {
	t.Helper()
	if len(models) == 0 {
		models = []types.Model{{ID: "tiny", Name: "tiny", Family: types.FamilyLlama, SizeBytes: 1 << 20}}
	}
	cfg := ManagerConfig{
		Store:        registry.NewMemoryStore(models...),
		Backends:     be,
		LockTimeout:  time.Second,
		DrainTimeout: time.Second,
		Workers:      2,
	}
	if mut != nil {
		mut(&cfg)
	}
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// failingStore fails List like an unreachable database.
type failingStore struct{ registry.MemoryStore }

func (*failingStore) List(context.Context) ([]types.Model, error) {
	return nil, apperr.RegistryFailure("registry.list", errStoreDown)
}

var errStoreDown = errors.New("database is locked")

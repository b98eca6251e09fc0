package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ollamad/internal/engine"
	"ollamad/internal/instance"
	"ollamad/internal/registry"
	"ollamad/pkg/types"
)

// State represents lifecycle state of the manager.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

type Manager struct {
	mu        sync.RWMutex
	state     State
	err       string
	publisher EventPublisher

	store           registry.Store
	table           *instance.Table
	engine          *engine.Engine
	modelsDir       string
	log             zerolog.Logger
	defaults        engine.Config
	generateTimeout time.Duration
	startTime       time.Time
}

// New returns a Manager over store with package defaults.
func New(store registry.Store, modelsDir string) *Manager {
	// Delegate to NewWithConfig to centralize defaults and option parsing
	return NewWithConfig(ManagerConfig{Store: store, ModelsDir: modelsDir})
}

// SetEventPublisher installs p; nil restores the no-op publisher.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

func (m *Manager) publish(e Event) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	p.Publish(e)
}

// Ready reports whether Initialize completed successfully.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}

// ListModels returns the catalog in insertion order.
func (m *Manager) ListModels(ctx context.Context) ([]types.Model, error) {
	return m.store.List(ctx)
}

// SearchModels returns the models whose name contains query, ignoring case. An
// empty query returns the full catalog.
func (m *Manager) SearchModels(ctx context.Context, query string) ([]types.Model, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	out := make([]types.Model, 0, len(all))
	for _, mdl := range all {
		if strings.Contains(strings.ToLower(mdl.Name), q) {
			out = append(out, mdl)
		}
	}
	return out, nil
}

// Stats aggregates the catalog. The running count is read from the instance
// table at call time; it is not a transactional snapshot.
func (m *Manager) Stats(ctx context.Context) (types.ModelStats, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return types.ModelStats{}, err
	}
	st := types.ModelStats{TotalModels: len(all), RunningModels: m.table.Len()}
	for _, mdl := range all {
		st.TotalSizeBytes += mdl.SizeBytes
	}
	st.TotalSizeGB = types.SizeGB(st.TotalSizeBytes)
	return st, nil
}

// Close unloads every model and closes the store.
func (m *Manager) Close() error {
	m.table.Close()
	return m.store.Close()
}

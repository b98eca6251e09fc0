package registry

import (
	"context"
	"sync"

	"ollamad/pkg/types"
)

// MemoryStore is an in-process Store. It is used by tests and when no database
// path is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string
	models map[string]types.Model
}

func NewMemoryStore(initial ...types.Model) *MemoryStore {
	s := &MemoryStore{models: make(map[string]types.Model)}
	for _, m := range initial {
		_ = s.Upsert(context.Background(), m)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (types.Model, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	return m, ok, nil
}

func (s *MemoryStore) List(context.Context) ([]types.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Model, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.models[id])
	}
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, m types.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.models[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	} else if m.CreatedAt.IsZero() {
		m.CreatedAt = prev.CreatedAt
	}
	s.models[m.ID] = m
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[id]; !ok {
		return false, nil
	}
	delete(s.models, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }

package manager

import (
	"time"

	"ollamad/pkg/types"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State  State
	Err    string
	Loaded []string
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	s := Snapshot{State: m.state, Err: m.err}
	m.mu.RUnlock()
	for _, inst := range m.table.ListLoaded() {
		s.Loaded = append(s.Loaded, inst.ID)
	}
	return s
}

// Running lists loaded instances with their queue counters.
func (m *Manager) Running() []types.RunningModel {
	loaded := m.table.ListLoaded()
	out := make([]types.RunningModel, 0, len(loaded))
	for _, inst := range loaded {
		out = append(out, inst.Status())
	}
	return out
}

// Status builds the response for /api/ps.
func (m *Manager) Status() types.ProcessResponse {
	m.mu.RLock()
	lastErr := m.err
	m.mu.RUnlock()
	return types.ProcessResponse{
		Models:        m.Running(),
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		LastError:     lastErr,
	}
}

package manager

import (
	"context"
	"strings"
	"time"

	"ollamad/internal/apperr"
)

// Load warms id without generating. It reports whether this call waited on a load.
func (m *Manager) Load(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperr.BadRequest("model is required")
	}
	_, loaded, err := m.table.EnsureLoaded(ctx, id)
	return loaded, err
}

// Unload releases the live instance of id. It waits up to the drain timeout for an
// in-flight generation and reports whether an instance was present.
func (m *Manager) Unload(id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperr.BadRequest("model is required")
	}
	return m.table.Unload(id), nil
}

// Remove unloads id and deletes its catalog record. The weight file is left on
// disk. It reports whether a record existed.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperr.BadRequest("model is required")
	}
	m.table.Unload(id)
	removed, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		m.publish(Event{Name: "model_removed", ModelID: id})
	}
	return removed, nil
}

// EvictIdle unloads instances idle for longer than olderThan.
func (m *Manager) EvictIdle(olderThan time.Duration) []string {
	return m.table.EvictIdle(olderThan)
}

// RunIdleEviction calls EvictIdle every interval until ctx is done. A
// non-positive keepAlive disables it.
func (m *Manager) RunIdleEviction(ctx context.Context, keepAlive, interval time.Duration) {
	if keepAlive <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ids := m.EvictIdle(keepAlive); len(ids) > 0 {
				m.log.Info().Strs("models", ids).Dur("keep_alive", keepAlive).Msg("evicted idle models")
			}
		}
	}
}

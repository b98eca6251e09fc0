package manager

import (
	"context"
	"fmt"

	"ollamad/internal/common/fsutil"
	"ollamad/internal/registry"
	"ollamad/pkg/types"
)

// Initialize reconciles the store with the models directory: weight files without
// a record are registered, records of changed files are refreshed, and records
// whose weight file disappeared are removed. Nothing is loaded. A failing store is
// fatal and leaves the manager not ready.
func (m *Manager) Initialize(ctx context.Context) error {
	m.setState(StateLoading, "")
	err := m.reconcile(ctx)
	if err != nil {
		m.setState(StateError, err.Error())
		return err
	}
	m.setState(StateReady, "")
	return nil
}

func (m *Manager) reconcile(ctx context.Context) error {
	existing, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]types.Model, len(existing))
	for _, mdl := range existing {
		byID[mdl.ID] = mdl
	}

	var found []types.Model
	if m.modelsDir != "" {
		dir, err := fsutil.EnsureDir(m.modelsDir)
		if err != nil {
			return fmt.Errorf("models dir: %w", err)
		}
		if found, err = registry.NewGGUFScanner().Scan(dir); err != nil {
			return fmt.Errorf("scan models dir: %w", err)
		}
	}

	added, refreshed := 0, 0
	for _, f := range found {
		prev, ok := byID[f.ID]
		if ok && prev.Path == f.Path && prev.SizeBytes == f.SizeBytes && prev.TokenizerPath == f.TokenizerPath {
			continue
		}
		if ok {
			f.CreatedAt = prev.CreatedAt
			f.Name = prev.Name
			refreshed++
		} else {
			added++
		}
		if err := m.store.Upsert(ctx, f); err != nil {
			return err
		}
		byID[f.ID] = f
		if !ok {
			m.publish(Event{Name: "model_discovered", ModelID: f.ID, Fields: map[string]any{"path": f.Path, "size": f.SizeBytes}})
		}
	}

	pruned := 0
	for _, mdl := range existing {
		// a refreshed record points at the file found this pass
		if cur := byID[mdl.ID]; cur.Path == "" || fsutil.PathExists(cur.Path) {
			continue
		}
		m.table.Unload(mdl.ID)
		if _, err := m.store.Delete(ctx, mdl.ID); err != nil {
			return err
		}
		pruned++
		m.publish(Event{Name: "model_pruned", ModelID: mdl.ID, Fields: map[string]any{"path": mdl.Path}})
	}

	m.log.Info().Str("models_dir", m.modelsDir).Int("added", added).Int("refreshed", refreshed).
		Int("pruned", pruned).Int("total", len(byID)-pruned).Msg("catalog reconciled")
	catalogModels.Set(float64(len(byID) - pruned))
	return nil
}

func (m *Manager) setState(s State, msg string) {
	m.mu.Lock()
	m.state = s
	m.err = msg
	m.mu.Unlock()
}

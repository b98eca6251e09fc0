package instance

import "time"

// makeRoom evicts LRU idle instances until need more bytes fit the budget. When
// nothing idle is left the load proceeds over budget.
func (t *Table) makeRoom(need int64) {
	t.evictMu.Lock()
	defer t.evictMu.Unlock()
	for {
		var used int64
		var lru *Instance
		t.instances.Range(func(_ string, inst *Instance) bool {
			used += inst.SizeBytes()
			// active or has queued work; skip
			if !inst.idle() {
				return true
			}
			if lru == nil || inst.LastUsed().Before(lru.LastUsed()) {
				lru = inst
			}
			return true
		})
		if used+need <= t.cfg.BudgetBytes {
			return
		}
		if lru == nil {
			t.cfg.Logger.Warn().Int64("used_bytes", used).Int64("need_bytes", need).
				Int64("budget_bytes", t.cfg.BudgetBytes).Msg("memory budget exceeded; nothing idle to evict")
			return
		}
		t.unload(lru.ID, "evicted")
	}
}

// EvictIdle unloads idle instances not used within olderThan and returns their ids.
func (t *Table) EvictIdle(olderThan time.Duration) []string {
	cutoff := time.Now().Add(-olderThan)
	var evicted []string
	for _, inst := range t.ListLoaded() {
		if inst.idle() && inst.LastUsed().Before(cutoff) && t.unload(inst.ID, "idle") {
			evicted = append(evicted, inst.ID)
		}
	}
	return evicted
}

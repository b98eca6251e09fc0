package manager

import (
	"time"

	"github.com/rs/zerolog"

	"ollamad/internal/instance"
)

// Event represents a manager lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
//
// Names: model_discovered, model_pruned, ensure_start, load_ready, load_failed,
// generate_done, unload_done, model_removed.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes events to a zerolog logger at debug level.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	ev := p.Log.Debug().Str("event", e.Name)
	if e.ModelID != "" {
		ev = ev.Str("model", e.ModelID)
	}
	ev.Fields(e.Fields).Msg("manager event")
}

func (m *Manager) onLoad(inst *instance.Instance, took time.Duration) {
	modelLoadsTotal.WithLabelValues("ok").Inc()
	modelLoadDuration.Observe(took.Seconds())
	modelsLoaded.Set(float64(m.table.Len()))
	m.publish(Event{Name: "load_ready", ModelID: inst.ID, Fields: map[string]any{
		"session": inst.Session, "dur_ms": took.Milliseconds(), "size": inst.SizeBytes(),
	}})
}

func (m *Manager) onUnload(inst *instance.Instance, reason string) {
	modelUnloadsTotal.WithLabelValues(reason).Inc()
	modelsLoaded.Set(float64(m.table.Len()))
	m.publish(Event{Name: "unload_done", ModelID: inst.ID, Fields: map[string]any{
		"session": inst.Session, "reason": reason,
	}})
}

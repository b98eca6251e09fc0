package manager

import "sync"

// MemoryPublisher stores events in-memory for tests and for the debug endpoint.
// It keeps at most Limit events (0 = unbounded), dropping the oldest.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	Limit  int
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	if p.Limit > 0 && len(p.events) > p.Limit {
		p.events = p.events[len(p.events)-p.Limit:]
	}
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the event names in publish order.
func (p *MemoryPublisher) Names() []string {
	evs := p.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Name
	}
	return out
}

// MultiPublisher fans an event out to several publishers.
type MultiPublisher []EventPublisher

func (mp MultiPublisher) Publish(e Event) {
	for _, p := range mp {
		p.Publish(e)
	}
}

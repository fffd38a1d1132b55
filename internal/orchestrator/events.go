package orchestrator

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event names.
const (
	EventFallbackUsed          = "fallback_used"
	EventStaleServed           = "stale_served"
	EventCollectionFailed      = "collection_failed"
	EventProviderRegistered    = "provider_registered"
	EventProviderConnectFailed = "provider_connect_failed"
	EventProviderDeregistered  = "provider_deregistered"
	EventCleanup               = "cleanup"
)

// Event represents an orchestrator event.
// Minimal and stable: name + provider or source and optional fields.
type Event struct {
	Name     string
	Provider string
	Fields   map[string]any
}

// EventPublisher receives events from the orchestrator. Implementations
// should be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the names of the recorded events in order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

// LogPublisher writes events to a zerolog logger at info level.
type LogPublisher struct{ Log zerolog.Logger }

func (p LogPublisher) Publish(e Event) {
	ev := p.Log.Info().Str("event", e.Name)
	if e.Provider != "" {
		ev = ev.Str("provider", e.Provider)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("orchestrator event")
}

package gateway

// Event represents a gateway lifecycle event (load, release, reload). These
// are distinct from the per-request token stream: lifecycle events describe
// the engine, stream events describe one generation.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// EventPublisher receives lifecycle events. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

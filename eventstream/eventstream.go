// Package eventstream delivers a workflow's flowevent.Event stream to
// clients over a transport (SSE, WebSocket, Pulse), mirroring the
// teacher's runtime/agent/stream.Sink contract exactly but carrying
// flowevent.Event (StreetRace's own event variants) instead of the
// teacher's stream.Event.
package eventstream

import "context"

// Sink delivers streaming updates to clients. Implementations must be
// thread-safe: the supervisor may call Send concurrently from multiple
// goroutines when dispatching events from parallel branches.
type Sink interface {
	// Send publishes an event to the sink's transport.
	Send(ctx context.Context, e Event) error
	// Close releases resources owned by the sink. Idempotent.
	Close(ctx context.Context) error
}

// Event is the wire-level envelope eventstream publishes; Payload is
// already JSON-serializable. Concrete flowevent.Event values are adapted
// to this shape by FromFlowEvent, keeping flowevent free of any
// knowledge of a particular transport's wire format.
type Event struct {
	Type      string
	RunID     string
	SessionID string
	Payload   any
}

// Bus is an in-process fan-out of events to N subscribed Sinks:
// synchronous delivery, fail-fast on the first subscriber error, so a
// broken sink surfaces immediately rather than silently dropping
// events.
type Bus struct {
	subs []Sink
}

// NewBus builds an empty Bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe adds a sink; returns an Unsubscribe func.
func (b *Bus) Subscribe(s Sink) (unsubscribe func()) {
	b.subs = append(b.subs, s)
	idx := len(b.subs) - 1
	return func() {
		if idx < len(b.subs) {
			b.subs[idx] = nil
		}
	}
}

// Publish synchronously fans an event out to every subscribed sink,
// stopping at (and returning) the first error.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	for _, s := range b.subs {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

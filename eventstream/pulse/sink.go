// Package pulse wires goa.design/pulse + github.com/redis/go-redis/v9 as
// an optional distributable eventstream.Sink, translating an
// eventstream.Event to a pulse stream entry and back. This gives
// deployments a distributable sink option beyond the in-process default.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/streetrace-ai/streetrace/eventstream"
	"github.com/streetrace-ai/streetrace/eventstream/pulse/clients/pulse"
)

// Options configures the Pulse sink.
type Options struct {
	// Client is the Pulse client used to publish events. Required.
	Client pulse.Client
	// StreamID derives the target Pulse stream from an event. Defaults to
	// `session/<SessionID>`.
	StreamID func(eventstream.Event) (string, error)
	// MarshalEnvelope allows overriding the envelope serialization
	// (primarily for tests).
	MarshalEnvelope func(Envelope) ([]byte, error)
}

// Sink publishes eventstream.Event values into Pulse streams.
// Thread-safe for concurrent Send calls.
type Sink struct {
	client          pulse.Client
	streamID        func(eventstream.Event) (string, error)
	marshalEnvelope func(Envelope) ([]byte, error)
}

// Envelope wraps a runtime event for transmission over a Pulse stream.
type Envelope struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewSink constructs a Pulse-backed eventstream.Sink. Client is required;
// StreamID and MarshalEnvelope default to the built-in implementations.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse: client is required")
	}
	s := &Sink{
		client:          opts.Client,
		streamID:        defaultStreamID,
		marshalEnvelope: defaultMarshal,
	}
	if opts.StreamID != nil {
		s.streamID = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		s.marshalEnvelope = opts.MarshalEnvelope
	}
	return s, nil
}

// Send implements eventstream.Sink.
func (s *Sink) Send(ctx context.Context, ev eventstream.Event) error {
	streamName, err := s.streamID(ev)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamName)
	if err != nil {
		return err
	}
	env := Envelope{Type: ev.Type, RunID: ev.RunID, SessionID: ev.SessionID, Timestamp: time.Now().UTC(), Payload: ev.Payload}
	payload, err := s.marshalEnvelope(env)
	if err != nil {
		return err
	}
	_, err = handle.Add(ctx, env.Type, payload)
	return err
}

// Close implements eventstream.Sink.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func defaultStreamID(ev eventstream.Event) (string, error) {
	if ev.SessionID == "" {
		return "", errors.New("pulse: event missing session id")
	}
	return fmt.Sprintf("session/%s", ev.SessionID), nil
}

func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

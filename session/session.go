// Package session is the durable ordered event log for a (user, app)
// conversation, with a call/response pairing validator. The Store
// interface follows a session lifecycle shape (create/load/end) widened
// with an ordered event log and a ReplaceEvents that overwrites the whole
// log.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/streetrace-ai/streetrace/flowevent"
)

// Status is a session's lifecycle value.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is the durable event log plus lifecycle state for one
// (user, app) conversation.
type Session struct {
	App       string
	User      string
	ID        string
	Status    Status
	CreatedAt time.Time
	EndedAt   *time.Time
	Events    []flowevent.Event
	State     map[string]any
}

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionEnded    = errors.New("session: ended")
)

// Store persists sessions and their event logs.
type Store interface {
	// CreateSession creates (or, if active, returns) a session.
	CreateSession(ctx context.Context, app, user, id string, createdAt time.Time) (*Session, error)
	// LoadSession loads an existing session. Returns ErrSessionNotFound
	// if absent.
	LoadSession(ctx context.Context, app, user, id string) (*Session, error)
	// EndSession ends a session, idempotently.
	EndSession(ctx context.Context, app, user, id string, endedAt time.Time) (*Session, error)
	// ReplaceEvents overwrites a session's stored event list with events;
	// the stored list is not compared against the caller's view first.
	// Validate uses it when repair is needed.
	ReplaceEvents(ctx context.Context, s *Session, events []flowevent.Event) (*Session, error)
}

// GetOrCreate loads a session if present, creating one otherwise.
func GetOrCreate(ctx context.Context, store Store, app, user, id string, now time.Time) (*Session, error) {
	s, err := store.LoadSession(ctx, app, user, id)
	if err == nil {
		if s.Status == StatusEnded {
			return nil, ErrSessionEnded
		}
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	return store.CreateSession(ctx, app, user, id, now)
}

// PostProcessHook runs after a turn completes, given the raw user input
// and the session as it stood before this turn's events were appended.
// Supervisor calls this exactly once per turn that produced a final
// event.
type PostProcessHook func(ctx context.Context, userInput string, original *Session) error

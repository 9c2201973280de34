// Package inmem is an in-memory session.Store for tests and local
// development: a map + mutex store with clone-on-read/write, plus a
// ReplaceEvents that overwrites the stored event log.
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/session"
)

// Store is an in-memory, mutex-guarded implementation of session.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*session.Session)}
}

func key(app, user, id string) string { return app + "/" + user + "/" + id }

func clone(s *session.Session) *session.Session {
	out := *s
	out.Events = append([]flowevent.Event(nil), s.Events...)
	out.State = make(map[string]any, len(s.State))
	for k, v := range s.State {
		out.State[k] = v
	}
	return &out
}

// CreateSession implements session.Store.
func (st *Store) CreateSession(_ context.Context, app, user, id string, createdAt time.Time) (*session.Session, error) {
	if id == "" {
		return nil, errors.New("inmem: session id is required")
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	k := key(app, user, id)
	if existing, ok := st.sessions[k]; ok {
		if existing.Status == session.StatusEnded {
			return nil, session.ErrSessionEnded
		}
		return clone(existing), nil
	}
	out := &session.Session{
		App: app, User: user, ID: id,
		Status: session.StatusActive, CreatedAt: createdAt.UTC(),
		State: map[string]any{},
	}
	st.sessions[k] = out
	return clone(out), nil
}

// LoadSession implements session.Store.
func (st *Store) LoadSession(_ context.Context, app, user, id string) (*session.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	existing, ok := st.sessions[key(app, user, id)]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return clone(existing), nil
}

// EndSession implements session.Store.
func (st *Store) EndSession(_ context.Context, app, user, id string, endedAt time.Time) (*session.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	existing, ok := st.sessions[key(app, user, id)]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if existing.Status == session.StatusEnded {
		return clone(existing), nil
	}
	at := endedAt.UTC()
	existing.Status = session.StatusEnded
	existing.EndedAt = &at
	return clone(existing), nil
}

// ReplaceEvents implements session.Store: an unconditional replace of
// the stored event list, keyed by the session's identity.
func (st *Store) ReplaceEvents(_ context.Context, s *session.Session, events []flowevent.Event) (*session.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	k := key(s.App, s.User, s.ID)
	existing, ok := st.sessions[k]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	existing.Events = append([]flowevent.Event(nil), events...)
	return clone(existing), nil
}

// AppendEvent appends one event to a session's log. It is not part of
// session.Store; the supervisor persists a turn's events through
// ReplaceEvents.
func (st *Store) AppendEvent(_ context.Context, app, user, id string, ev flowevent.Event) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	existing, ok := st.sessions[key(app, user, id)]
	if !ok {
		return session.ErrSessionNotFound
	}
	existing.Events = append(existing.Events, ev)
	return nil
}

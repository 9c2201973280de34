// Package redis implements session.Store over github.com/redis/go-redis/v9,
// storing a session's metadata in a hash and its event log as one Redis
// stream entry per event: an append-only record per event, for which a
// Redis stream entry gives the equivalent ordering guarantee.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/session"
)

// Store is a Redis-backed session.Store.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New builds a Store over an existing *redis.Client. prefix namespaces
// keys (e.g. "streetrace") so multiple applications can share one Redis
// instance.
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "streetrace"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) metaKey(app, user, id string) string {
	return fmt.Sprintf("%s:session:%s:%s:%s:meta", s.prefix, app, user, id)
}

func (s *Store) eventsKey(app, user, id string) string {
	return fmt.Sprintf("%s:session:%s:%s:%s:events", s.prefix, app, user, id)
}

// meta is the hash payload stored at metaKey.
type meta struct {
	Status    session.Status `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(ctx context.Context, app, user, id string, createdAt time.Time) (*session.Session, error) {
	key := s.metaKey(app, user, id)
	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var m meta
		if jerr := json.Unmarshal([]byte(raw), &m); jerr != nil {
			return nil, fmt.Errorf("session/redis: decode meta: %w", jerr)
		}
		if m.Status == session.StatusEnded {
			return nil, session.ErrSessionEnded
		}
		return s.load(ctx, app, user, id, m)
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("session/redis: get meta: %w", err)
	}

	m := meta{Status: session.StatusActive, CreatedAt: createdAt.UTC()}
	if err := s.saveMeta(ctx, key, m); err != nil {
		return nil, err
	}
	return &session.Session{App: app, User: user, ID: id, Status: m.Status, CreatedAt: m.CreatedAt, State: map[string]any{}}, nil
}

// LoadSession implements session.Store.
func (s *Store) LoadSession(ctx context.Context, app, user, id string) (*session.Session, error) {
	raw, err := s.rdb.Get(ctx, s.metaKey(app, user, id)).Result()
	if err == redis.Nil {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session/redis: get meta: %w", err)
	}
	var m meta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("session/redis: decode meta: %w", err)
	}
	return s.load(ctx, app, user, id, m)
}

// EndSession implements session.Store.
func (s *Store) EndSession(ctx context.Context, app, user, id string, endedAt time.Time) (*session.Session, error) {
	sess, err := s.LoadSession(ctx, app, user, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusEnded {
		return sess, nil
	}
	at := endedAt.UTC()
	m := meta{Status: session.StatusEnded, CreatedAt: sess.CreatedAt, EndedAt: &at}
	if err := s.saveMeta(ctx, s.metaKey(app, user, id), m); err != nil {
		return nil, err
	}
	sess.Status = session.StatusEnded
	sess.EndedAt = &at
	return sess, nil
}

// ReplaceEvents implements session.Store: the stream is deleted and
// rewritten in full, since a compare-and-set over individual stream
// entries buys nothing here — Validate always replaces the whole log.
func (s *Store) ReplaceEvents(ctx context.Context, sess *session.Session, events []flowevent.Event) (*session.Session, error) {
	key := s.eventsKey(sess.App, sess.User, sess.ID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("session/redis: clear events: %w", err)
	}
	for _, ev := range events {
		if err := s.appendEvent(ctx, key, ev); err != nil {
			return nil, err
		}
	}
	out := *sess
	out.Events = append([]flowevent.Event(nil), events...)
	return &out, nil
}

// AppendEvent appends one event to a session's stream; mirrors
// session/inmem.Store.AppendEvent and, like it, is not part of
// session.Store.
func (s *Store) AppendEvent(ctx context.Context, app, user, id string, ev flowevent.Event) error {
	return s.appendEvent(ctx, s.eventsKey(app, user, id), ev)
}

func (s *Store) appendEvent(ctx context.Context, key string, ev flowevent.Event) error {
	raw, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]any{"event": raw}}).Err()
}

func (s *Store) saveMeta(ctx context.Context, key string, m meta) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("session/redis: encode meta: %w", err)
	}
	return s.rdb.Set(ctx, key, raw, 0).Err()
}

func (s *Store) load(ctx context.Context, app, user, id string, m meta) (*session.Session, error) {
	entries, err := s.rdb.XRange(ctx, s.eventsKey(app, user, id), "-", "+").Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("session/redis: read events: %w", err)
	}
	events := make([]flowevent.Event, 0, len(entries))
	for _, e := range entries {
		raw, _ := e.Values["event"].(string)
		ev, err := unmarshalEvent([]byte(raw))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return &session.Session{
		App: app, User: user, ID: id, Status: m.Status, CreatedAt: m.CreatedAt, EndedAt: m.EndedAt,
		Events: events, State: map[string]any{},
	}, nil
}

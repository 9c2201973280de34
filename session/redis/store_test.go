package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetrace-ai/streetrace/flowevent"
	"github.com/streetrace-ai/streetrace/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test")
}

func TestCreateSessionThenLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	created, err := s.CreateSession(ctx, "app", "user", "sess-1", now)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, created.Status)

	loaded, err := s.LoadSession(ctx, "app", "user", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.True(t, created.CreatedAt.Equal(loaded.CreatedAt))
	assert.Empty(t, loaded.Events)
}

func TestCreateSessionReturnsExistingActiveSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := s.CreateSession(ctx, "app", "user", "sess-2", now)
	require.NoError(t, err)

	second, err := s.CreateSession(ctx, "app", "user", "sess-2", now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestLoadSessionMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadSession(context.Background(), "app", "user", "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := s.CreateSession(ctx, "app", "user", "sess-3", now)
	require.NoError(t, err)

	ended, err := s.EndSession(ctx, "app", "user", "sess-3", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, ended.Status)

	again, err := s.EndSession(ctx, "app", "user", "sess-3", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, again.Status)
	assert.Equal(t, ended.EndedAt, again.EndedAt)
}

func TestReplaceEventsOverwritesWholeLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "app", "user", "sess-4", time.Now().UTC())
	require.NoError(t, err)

	firstEvents := []flowevent.Event{flowevent.NewTextEvent("agent", "first", false)}
	require.NoError(t, s.AppendEvent(ctx, "app", "user", "sess-4", firstEvents[0]))

	replacement := []flowevent.Event{flowevent.NewTextEvent("agent", "replaced", true)}
	updated, err := s.ReplaceEvents(ctx, sess, replacement)
	require.NoError(t, err)
	require.Len(t, updated.Events, 1)

	reloaded, err := s.LoadSession(ctx, "app", "user", "sess-4")
	require.NoError(t, err)
	require.Len(t, reloaded.Events, 1)
	ce, ok := reloaded.Events[0].(*flowevent.ContentEvent)
	require.True(t, ok)
	assert.Equal(t, "replaced", ce.FirstText())
	assert.True(t, ce.IsFinal)
}

func TestAppendEventPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateSession(ctx, "app", "user", "sess-5", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, s.AppendEvent(ctx, "app", "user", "sess-5", flowevent.NewTextEvent("agent", "one", false)))
	require.NoError(t, s.AppendEvent(ctx, "app", "user", "sess-5", flowevent.NewTextEvent("agent", "two", true)))

	loaded, err := s.LoadSession(ctx, "app", "user", "sess-5")
	require.NoError(t, err)
	require.Len(t, loaded.Events, 2)
	assert.Equal(t, "one", loaded.Events[0].(*flowevent.ContentEvent).FirstText())
	assert.Equal(t, "two", loaded.Events[1].(*flowevent.ContentEvent).FirstText())
}

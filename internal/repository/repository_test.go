package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"supportchat/internal/model"
	"supportchat/internal/platform/sqlite"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", uuid.NewString())
	db, err := sqlite.New(context.Background(), dsn, nil)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// stepClock hands out strictly increasing instants.
type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *stepClock {
	return &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestSessionRepository_EnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clock := newClock()
	repo := NewSessionRepository(db)
	repo.now = clock.now

	require.NoError(t, repo.Ensure(ctx, "s1"))
	first, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, repo.Ensure(ctx, "s1"))
	second, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, first.CreatedAt.Equal(second.CreatedAt))
	require.True(t, first.UpdatedAt.Equal(second.UpdatedAt))

	sessions, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestSessionRepository_GetMissing(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	session, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestMessageRepository_AppendValidates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, NewSessionRepository(db).Ensure(ctx, "s1"))
	repo := NewMessageRepository(db)

	_, err := repo.Append(ctx, "s1", "system", "hello")
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = repo.Append(ctx, "s1", model.RoleUser, "   ")
	require.ErrorIs(t, err, ErrInvalidMessage)

	count, err := repo.Count(ctx, "s1")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestMessageRepository_AppendRequiresSession(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	_, err := repo.Append(context.Background(), "ghost", model.RoleUser, "hi")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMessageRepository_AppendTouchesSession(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clock := newClock()
	sessions := NewSessionRepository(db)
	sessions.now = clock.now
	messages := NewMessageRepository(db)
	messages.now = clock.now

	require.NoError(t, sessions.Ensure(ctx, "a"))
	require.NoError(t, sessions.Ensure(ctx, "b"))

	list, err := sessions.List(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", list[0].ID)

	id1, err := messages.Append(ctx, "a", model.RoleUser, "hello")
	require.NoError(t, err)
	id2, err := messages.Append(ctx, "a", model.RoleAssistant, "hi there")
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	list, err = sessions.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, []string{list[0].ID, list[1].ID})

	a, err := sessions.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, a.UpdatedAt.After(a.CreatedAt))
}

func TestMessageRepository_UpdatedAtNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sessions := NewSessionRepository(db)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return base }
	require.NoError(t, sessions.Ensure(ctx, "s1"))

	messages := NewMessageRepository(db)
	messages.now = func() time.Time { return base.Add(-time.Hour) }
	_, err := messages.Append(ctx, "s1", model.RoleUser, "late clock")
	require.NoError(t, err)

	got, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, got.UpdatedAt.Equal(base))
}

func TestMessageRepository_ClockStepBackKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, NewSessionRepository(db).Ensure(ctx, "s1"))
	repo := NewMessageRepository(db)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	instants := []time.Time{
		base,
		base.Add(-time.Hour),
		base.Add(-2 * time.Hour),
		base.Add(time.Second),
	}
	next := 0
	repo.now = func() time.Time {
		at := instants[next]
		next++
		return at
	}

	contents := []string{"first", "second", "third", "fourth"}
	for _, content := range contents {
		_, err := repo.Append(ctx, "s1", model.RoleUser, content)
		require.NoError(t, err)
	}

	history, err := repo.FullHistory(ctx, "s1")
	require.NoError(t, err)
	got := make([]string, 0, len(history))
	for _, turn := range history {
		got = append(got, turn.Content)
	}
	require.Equal(t, contents, got)

	window, err := repo.RecentWindow(ctx, "s1", 2)
	require.NoError(t, err)
	require.Equal(t, "third", window[0].Content)
	require.Equal(t, "fourth", window[1].Content)

	var stored []model.Message
	require.NoError(t, db.Where("session_id = ?", "s1").Order("id ASC").Find(&stored).Error)
	for i := 1; i < len(stored); i++ {
		require.False(t, stored[i].CreatedAt.Before(stored[i-1].CreatedAt), "created_at went backwards at %d", i)
	}
}

func TestMessageRepository_FullHistoryChronological(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clock := newClock()
	require.NoError(t, NewSessionRepository(db).Ensure(ctx, "s1"))
	require.NoError(t, NewSessionRepository(db).Ensure(ctx, "s2"))
	repo := NewMessageRepository(db)
	repo.now = clock.now

	want := make([]model.Turn, 0, 6)
	for i := 0; i < 3; i++ {
		u := fmt.Sprintf("question %d", i)
		a := fmt.Sprintf("answer %d", i)
		_, err := repo.Append(ctx, "s1", model.RoleUser, u)
		require.NoError(t, err)
		_, err = repo.Append(ctx, "s2", model.RoleUser, "noise")
		require.NoError(t, err)
		_, err = repo.Append(ctx, "s1", model.RoleAssistant, a)
		require.NoError(t, err)
		want = append(want, model.Turn{Role: model.RoleUser, Content: u}, model.Turn{Role: model.RoleAssistant, Content: a})
	}

	got, err := repo.FullHistory(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, want, got)

	empty, err := repo.FullHistory(ctx, "unknown")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestMessageRepository_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, NewSessionRepository(db).Ensure(ctx, "s1"))
	repo := NewMessageRepository(db)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }

	for _, content := range []string{"one", "two", "three"} {
		_, err := repo.Append(ctx, "s1", model.RoleUser, content)
		require.NoError(t, err)
	}

	history, err := repo.FullHistory(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "one", history[0].Content)
	require.Equal(t, "three", history[2].Content)

	window, err := repo.RecentWindow(ctx, "s1", 2)
	require.NoError(t, err)
	require.Equal(t, []model.Turn{
		{Role: model.RoleUser, Content: "two"},
		{Role: model.RoleUser, Content: "three"},
	}, window)
}

func TestMessageRepository_RecentWindowIsSuffixOfHistory(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clock := newClock()
	require.NoError(t, NewSessionRepository(db).Ensure(ctx, "s1"))
	repo := NewMessageRepository(db)
	repo.now = clock.now

	for i := 0; i < 13; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		_, err := repo.Append(ctx, "s1", role, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	history, err := repo.FullHistory(ctx, "s1")
	require.NoError(t, err)

	for _, limit := range []int{1, 10, 13, 50} {
		window, err := repo.RecentWindow(ctx, "s1", limit)
		require.NoError(t, err)
		n := limit
		if n > len(history) {
			n = len(history)
		}
		require.Len(t, window, n)
		require.Equal(t, history[len(history)-n:], window, "limit=%d", limit)
	}

	window, err := repo.RecentWindow(ctx, "s1", 0)
	require.NoError(t, err)
	require.Empty(t, window)
}

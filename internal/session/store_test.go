package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/chatflow/internal/errors"
	appredis "github.com/Proton-105/chatflow/pkg/redis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type storeFactory func(t *testing.T) Store

func newRedisTestStore(t *testing.T) Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := appredis.New(context.Background(), appredis.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(appredis.NewMetricsClient(client), testLogger(), "session:", time.Hour)
}

func newBoltTestStore(t *testing.T) Store {
	t.Helper()

	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newPostgresTestStore(t *testing.T) Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chat_sessions (
		key TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`TRUNCATE chat_sessions`)
	require.NoError(t, err)

	return NewPostgresStore(db, testLogger())
}

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory":   func(*testing.T) Store { return NewMemoryStore() },
		"redis":    newRedisTestStore,
		"bolt":     newBoltTestStore,
		"postgres": newPostgresTestStore,
		"breaker": func(*testing.T) Store {
			return WithCircuitBreaker(NewMemoryStore(), apperrors.BreakerSettings{})
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			_, err := store.Get(ctx, "42")
			assert.ErrorIs(t, err, ErrSessionNotFound)

			s := New()
			s.SetFlow("booking", "SELECT_ITEMS")
			s.Set("items", []any{"1", "2"})
			require.NoError(t, store.Set(ctx, "42", s))

			got, err := store.Get(ctx, "42")
			require.NoError(t, err)
			assert.Equal(t, "booking", got.FlowName())
			assert.Equal(t, "SELECT_ITEMS", got.FlowState())
			assert.Equal(t, []any{"1", "2"}, got["items"])

			got.Set("mutated", true)
			again, err := store.Get(ctx, "42")
			require.NoError(t, err)
			_, ok := again.Get("mutated")
			assert.False(t, ok, "stored session must not alias returned value")

			require.NoError(t, store.Delete(ctx, "42"))
			_, err = store.Get(ctx, "42")
			assert.ErrorIs(t, err, ErrSessionNotFound)

			require.NoError(t, store.Delete(ctx, "missing"))
		})
	}
}

func TestStore_PruneAndScan(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "1", Session{"a": "x"}))
			require.NoError(t, store.Set(ctx, "2", Session{"b": "y"}))

			scanner, ok := store.(Scanner)
			require.True(t, ok)

			seen := map[string]Session{}
			require.NoError(t, scanner.Scan(ctx, func(key string, s Session) bool {
				seen[key] = s
				return true
			}))
			assert.Len(t, seen, 2)
			assert.Equal(t, "x", seen["1"]["a"])

			pruner, ok := store.(Pruner)
			require.True(t, ok)

			removed, err := pruner.Prune(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.Zero(t, removed)

			removed, err = pruner.Prune(ctx, time.Now().Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			_, err = store.Get(ctx, "1")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestScan_StopsEarly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, k := range []string{"1", "2", "3"} {
		require.NoError(t, store.Set(ctx, k, Session{"k": k}))
	}

	calls := 0
	require.NoError(t, store.Scan(ctx, func(string, Session) bool {
		calls++
		return false
	}))
	assert.Equal(t, 1, calls)
}

func TestRedisStore_AppliesTTLAndPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := appredis.New(context.Background(), appredis.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, testLogger(), "chat:", 30*time.Minute)
	require.NoError(t, store.Set(context.Background(), "7", Session{"x": 1}))

	assert.True(t, mr.Exists("chat:7"))
	assert.Equal(t, 30*time.Minute, mr.TTL("chat:7"))
}

func TestRedisStore_GetReturnsStoreErrorWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := appredis.New(context.Background(), appredis.Config{Addr: mr.Addr(), MaxRetries: -1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, testLogger(), "session:", 0)
	mr.Close()

	_, err = store.Get(context.Background(), "1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSessionNotFound))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeStore, appErr.Code)
}

type failingStore struct {
	err error
}

func (f failingStore) Get(context.Context, string) (Session, error) { return nil, f.err }
func (f failingStore) Set(context.Context, string, Session) error   { return f.err }
func (f failingStore) Delete(context.Context, string) error         { return f.err }

func TestBreakerStore_OpensAfterFailures(t *testing.T) {
	boom := errors.New("boom")
	store := WithCircuitBreaker(failingStore{err: boom}, apperrors.BreakerSettings{MinRequests: 2, OpenTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := store.Set(ctx, "1", New())
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, apperrors.BreakerOpen, store.State())
	_, err := store.Get(ctx, "1")
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
}

func TestBreakerStore_NotFoundIsNotAFailure(t *testing.T) {
	store := WithCircuitBreaker(failingStore{err: ErrSessionNotFound}, apperrors.BreakerSettings{MinRequests: 1})

	for i := 0; i < 5; i++ {
		_, err := store.Get(context.Background(), "1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	}
	assert.Equal(t, apperrors.BreakerClosed, store.State())
}

func TestCleaner_Cleanup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	require.NoError(t, store.Set(ctx, "old", Session{"a": 1}))
	store.now = func() time.Time { return base.Add(50 * time.Minute) }
	require.NoError(t, store.Set(ctx, "fresh", Session{"a": 1}))

	cleaner := NewCleaner(store, testLogger(), 30*time.Minute, time.Minute)
	require.NotNil(t, cleaner)
	cleaner.now = func() time.Time { return base.Add(time.Hour) }

	removed, err := cleaner.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestNewCleaner_NilWhenStoreCannotPrune(t *testing.T) {
	assert.Nil(t, NewCleaner(failingStore{}, nil, time.Hour, time.Minute))
	assert.Nil(t, NewCleaner(NewMemoryStore(), nil, 0, time.Minute))

	var c *Cleaner
	removed, err := c.Cleanup(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, removed)
}

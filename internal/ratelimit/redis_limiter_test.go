package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/chatflow/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "u:1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 1-i, result.Remaining)
	}

	result, err := limiter.Check(ctx, "u:1", 2, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)

	card, err := client.ZCard(ctx, redisKeyPrefix+"u:1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), card, "rejected request must not be counted")
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	now := time.Now()
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "u:2", 2, time.Second)
		require.NoError(t, err)
	}
	_, err := limiter.Check(ctx, "u:2", 2, time.Second)
	require.ErrorIs(t, err, ErrLimitExceeded)

	limiter.now = func() time.Time { return now.Add(1100 * time.Millisecond) }
	result, err := limiter.Check(ctx, "u:2", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiter_ZeroLimitRejects(t *testing.T) {
	client, _ := setupTestRedis(t)
	_, err := NewRedisLimiter(client, testLogger()).Check(context.Background(), "u", 0, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestMemoryLimiter(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := limiter.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	result, err := limiter.Check(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, 61*time.Second, result.RetryAfter(now))

	limiter.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = limiter.Check(ctx, "k", 1, time.Minute)
	assert.NoError(t, err)

	limiter.now = func() time.Time { return now.Add(time.Hour) }
	assert.Equal(t, 1, limiter.Cleanup(10*time.Minute))
}

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis down")
}

func TestAdaptiveLimiter_FallsBackWithStricterLimit(t *testing.T) {
	limiter := NewAdaptiveLimiter(brokenLimiter{}, NewMemoryLimiter(), testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "k", 4, time.Minute)
		require.NoError(t, err)
	}
	_, err := limiter.Check(ctx, "k", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestAdaptiveLimiter_PassesPrimaryRejection(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(), testLogger())

	_, err := limiter.Check(context.Background(), "k", 0, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestRules(t *testing.T) {
	rules, err := NewRules(config.RateLimitConfig{
		PerUser:   config.RateLimitRule{Limit: 5, Window: "30s"},
		Whitelist: []int64{7},
	})
	require.NoError(t, err)

	limit, window := rules.PerUser()
	assert.Equal(t, 5, limit)
	assert.Equal(t, 30*time.Second, window)
	assert.True(t, rules.Enabled())
	assert.True(t, rules.IsWhitelisted(7))
	assert.False(t, rules.IsWhitelisted(8))
	assert.Equal(t, "user:8", UserKey(8))

	_, err = NewRules(config.RateLimitConfig{PerUser: config.RateLimitRule{Limit: 1}})
	assert.Error(t, err)
	_, err = NewRules(config.RateLimitConfig{PerUser: config.RateLimitRule{Limit: 1, Window: "soon"}})
	assert.Error(t, err)

	disabled, err := NewRules(config.RateLimitConfig{})
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
}

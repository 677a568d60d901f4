package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/Proton-105/chatflow/internal/errors"
	appredis "github.com/Proton-105/chatflow/pkg/redis"
)

// KV is the subset of the Redis client used by RedisStore.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ScanKeys(ctx context.Context, pattern string, fn func(keys []string) bool) error
}

var (
	_ KV = (*appredis.Client)(nil)
	_ KV = (*appredis.MetricsClient)(nil)
)

// RedisStore persists sessions as JSON documents under prefix+key.
type RedisStore struct {
	client KV
	log    *slog.Logger
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore builds a Redis-backed store. A zero ttl keeps sessions until pruned.
func NewRedisStore(client KV, log *slog.Logger, prefix string, ttl time.Duration) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Session, error) {
	var data string
	err := apperrors.WithRetry(ctx, func() error {
		var err error
		data, err = s.client.Get(ctx, s.redisKey(key))
		if err != nil && !stderrors.Is(err, appredis.Nil) {
			return apperrors.NewStoreError("redis get", err)
		}
		return err
	})
	if err != nil {
		if stderrors.Is(err, appredis.Nil) {
			return nil, ErrSessionNotFound
		}

		s.log.ErrorContext(ctx, "failed to get session from redis", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	rec, err := decodeRecord([]byte(data))
	if err != nil {
		s.log.ErrorContext(ctx, "failed to decode session", slog.String("key", key), slog.Any("error", err))
		return nil, apperrors.NewStoreError("redis decode", err)
	}

	return rec.Data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, sess Session) error {
	data, err := json.Marshal(record{Data: sess, UpdatedAt: s.now().UTC()})
	if err != nil {
		return apperrors.NewStoreError("redis encode", err)
	}

	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl); err != nil {
		s.log.ErrorContext(ctx, "failed to save session in redis", slog.String("key", key), slog.Any("error", err))
		return apperrors.NewStoreError("redis set", err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Delete(ctx, s.redisKey(key)); err != nil {
		s.log.ErrorContext(ctx, "failed to delete session", slog.String("key", key), slog.Any("error", err))
		return apperrors.NewStoreError("redis delete", err)
	}

	return nil
}

func (s *RedisStore) Scan(ctx context.Context, fn func(key string, sess Session) bool) error {
	_, err := s.walk(ctx, func(key string, rec record) bool {
		return fn(key, rec.Data)
	})
	return err
}

// Prune deletes sessions whose last write is older than olderThan. Sessions with a
// Redis TTL usually expire on their own; this covers stores running without one.
func (s *RedisStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	var stale []string
	if _, err := s.walk(ctx, func(key string, rec record) bool {
		if rec.UpdatedAt.Before(olderThan) {
			stale = append(stale, key)
		}
		return true
	}); err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range stale {
		if err := s.Delete(ctx, key); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *RedisStore) walk(ctx context.Context, fn func(key string, rec record) bool) (bool, error) {
	stopped := false
	var walkErr error

	err := s.client.ScanKeys(ctx, s.prefix+"*", func(keys []string) bool {
		for _, redisKey := range keys {
			data, err := s.client.Get(ctx, redisKey)
			if err != nil {
				if stderrors.Is(err, appredis.Nil) {
					continue
				}
				walkErr = apperrors.NewStoreError("redis get", err)
				return false
			}

			rec, err := decodeRecord([]byte(data))
			if err != nil {
				s.log.WarnContext(ctx, "skipping undecodable session", slog.String("key", redisKey), slog.Any("error", err))
				continue
			}

			if !fn(strings.TrimPrefix(redisKey, s.prefix), rec) {
				stopped = true
				return false
			}
		}
		return true
	})
	if err != nil {
		return stopped, apperrors.NewStoreError("redis scan", err)
	}

	return stopped, walkErr
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

func decodeRecord(data []byte) (record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if rec.Data == nil {
		rec.Data = New()
	}
	return rec, nil
}

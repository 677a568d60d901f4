package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes keys that lost their expiry or carry one longer than maxTTL.
type Cleaner struct {
	client  redis.Cmdable
	log     *slog.Logger
	pattern string
	maxTTL  time.Duration
}

func NewCleaner(client redis.Cmdable, log *slog.Logger, pattern string, maxTTL time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if pattern == "" {
		pattern = DefaultPrefix + "*"
	}

	return &Cleaner{client: client, log: log, pattern: pattern, maxTTL: maxTTL}
}

// Cleanup performs one sweep and returns the number of removed keys.
func (c *Cleaner) Cleanup(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.pattern, 100).Result()
		if err != nil {
			c.log.ErrorContext(ctx, "idempotency cleaner scan failed", slog.Any("error", err))
			return removed, err
		}

		for _, key := range keys {
			ttl, err := c.client.TTL(ctx, key).Result()
			if err != nil {
				c.log.WarnContext(ctx, "failed to get key ttl", slog.String("key", key), slog.Any("error", err))
				continue
			}

			// -2 means the key vanished between SCAN and TTL.
			if ttl == -2 {
				continue
			}
			if ttl < 0 || ttl > c.maxTTL {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.WarnContext(ctx, "failed to delete stale idempotency key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				removed++
			}
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

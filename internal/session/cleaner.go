package session

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner drops sessions that have not been written for longer than ttl.
type Cleaner struct {
	pruner   Pruner
	log      *slog.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewCleaner returns nil when store cannot prune, which makes Run a no-op.
func NewCleaner(store Store, log *slog.Logger, ttl, interval time.Duration) *Cleaner {
	pruner, ok := store.(Pruner)
	if !ok || ttl <= 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &Cleaner{
		pruner:   pruner,
		log:      log,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("session cleaner stopped", slog.Any("reason", ctx.Err()))
			return
		case <-ticker.C:
			_, _ = c.Cleanup(ctx)
		}
	}
}

// Cleanup runs a single prune pass with the configured ttl.
func (c *Cleaner) Cleanup(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	return c.CleanupOlderThan(ctx, c.ttl)
}

// CleanupOlderThan prunes sessions idle for longer than age.
func (c *Cleaner) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if c == nil || ctx.Err() != nil || age <= 0 {
		return 0, nil
	}

	removed, err := c.pruner.Prune(ctx, c.now().Add(-age))
	if err != nil {
		c.log.ErrorContext(ctx, "session cleanup failed", slog.Any("error", err))
		return 0, err
	}

	if removed > 0 {
		c.log.InfoContext(ctx, "expired sessions removed", slog.Int("count", removed))
	}
	return removed, nil
}

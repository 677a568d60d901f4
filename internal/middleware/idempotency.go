// Package middleware holds dialog and HTTP middlewares shared by the bot binary.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Proton-105/chatflow/internal/dialog"
	"github.com/Proton-105/chatflow/internal/idempotency"
)

// Idempotency ensures an update is dispatched at most once per update ID. A
// redelivered update that already succeeded is dropped silently.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) dialog.Middleware {
	if manager == nil {
		return func(next dialog.Handler) dialog.Handler { return next }
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next dialog.Handler) dialog.Handler {
		return func(c *dialog.Context) error {
			key := UpdateKey(c.Update())
			if key == "" {
				return next(c)
			}

			result, err := manager.Execute(c.Context(), key, ttl, func(context.Context) (any, error) {
				return nil, next(c)
			})
			if errors.Is(err, idempotency.ErrRequestInProgress) {
				log.DebugContext(c.Context(), "update is already being processed", slog.String("key", key))
				return nil
			}
			if err != nil {
				return err
			}

			if result.FromCache {
				log.InfoContext(c.Context(), "duplicate update skipped", slog.Int64("update_id", c.Update().ID))
			}
			return nil
		}
	}
}

// UpdateKey derives the idempotency key of u. Updates without an ID have none.
func UpdateKey(u *dialog.Update) string {
	if u == nil || u.ID == 0 {
		return ""
	}
	return idempotency.GenerateKey("update", u.ID)
}

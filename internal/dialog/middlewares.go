package dialog

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/Proton-105/chatflow/internal/session"
)

// SessionMiddleware loads the sender's session before the rest of the chain and
// saves it once the whole dispatch has succeeded. Updates without a sender get a
// throwaway session that is never stored. A session left empty is deleted.
func SessionMiddleware(store session.Store) Middleware {
	return func(next Handler) Handler {
		return func(c *Context) error {
			sender := c.Sender()
			if sender == nil {
				c.session = session.New()
				return next(c)
			}

			key := strconv.FormatInt(sender.ID, 10)

			loaded, err := store.Get(c.ctx, key)
			switch {
			case errors.Is(err, session.ErrSessionNotFound):
				loaded = session.New()
			case err != nil:
				return err
			case loaded == nil:
				loaded = session.New()
			}
			c.session = loaded

			if err := next(c); err != nil {
				return err
			}

			if c.session.IsEmpty() {
				return store.Delete(c.ctx, key)
			}
			return store.Set(c.ctx, key, c.session)
		}
	}
}

// LoggingMiddleware logs every update with its duration and outcome.
func LoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(c *Context) error {
			start := time.Now()
			err := next(c)

			attrs := []any{
				slog.Duration("duration", time.Since(start)),
				slog.String("flow", c.session.FlowName()),
				slog.String("state", c.session.FlowState()),
			}
			if err != nil {
				c.log.WarnContext(c.ctx, "update failed", append(attrs, slog.Any("error", err))...)
				return err
			}

			c.log.InfoContext(c.ctx, "update handled", attrs...)
			return nil
		}
	}
}

package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Proton-105/chatflow/internal/dialog"
	apperrors "github.com/Proton-105/chatflow/internal/errors"
	"github.com/Proton-105/chatflow/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user rate limits for incoming updates.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	log     *slog.Logger
	now     func() time.Time
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		log:     log,
		now:     time.Now,
	}
}

// Handle rejects updates over the limit with a short notice. Limiter failures
// let the update through.
func (m *RateLimitMiddleware) Handle(next dialog.Handler) dialog.Handler {
	return func(c *dialog.Context) error {
		if m.limiter == nil || !m.rules.Enabled() {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil || m.rules.IsWhitelisted(sender.ID) {
			return next(c)
		}

		limit, window := m.rules.PerUser()
		result, err := m.limiter.Check(c.Context(), ratelimit.UserKey(sender.ID), limit, window)
		switch {
		case errors.Is(err, ratelimit.ErrLimitExceeded):
			return m.reject(c, result)
		case err != nil:
			m.log.WarnContext(c.Context(), "rate limiter error", slog.Int64("user_id", sender.ID), slog.Any("error", err))
			return next(c)
		}

		return next(c)
	}
}

func (m *RateLimitMiddleware) reject(c *dialog.Context, result *ratelimit.Result) error {
	retryAfter := int(result.RetryAfter(m.now()) / time.Second)
	appErr := apperrors.NewRateLimitError(retryAfter)

	m.log.WarnContext(c.Context(), "rate limit exceeded",
		slog.Int64("user_id", c.SenderID()), slog.Int("retry_after", retryAfter))

	if c.Update().IsCallback() {
		return c.AnswerCallbackQuery(appErr.UserMessage, false)
	}
	if c.Chat() == nil {
		return nil
	}
	_, err := c.Reply(dialog.Text(appErr.UserMessage))
	return err
}

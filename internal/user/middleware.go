package user

import (
	"log/slog"

	"github.com/Proton-105/chatflow/internal/dialog"
)

const (
	// ContextKey holds the sender's *Profile in the dialog context.
	ContextKey = "user.profile"
	// SessionLanguageKey is the session field flows read the language from.
	SessionLanguageKey = "lang"
)

// Middleware touches the sender's profile and seeds the session language from
// it when the session has none. It must run inside SessionMiddleware. Profile
// failures are logged and never block the update.
func Middleware(svc *Service) dialog.Middleware {
	return func(next dialog.Handler) dialog.Handler {
		return func(c *dialog.Context) error {
			sender := c.Sender()
			if sender == nil {
				return next(c)
			}

			p, err := svc.Touch(c.Context(), sender)
			if err != nil {
				c.Logger().Warn("profile unavailable", slog.Int64("user_id", sender.ID), slog.Any("error", err))
				return next(c)
			}
			c.Set(ContextKey, p)

			if s := c.Session(); s != nil && p.Language != "" && s.GetString(SessionLanguageKey) == "" {
				s.Set(SessionLanguageKey, p.Language)
			}
			return next(c)
		}
	}
}

// FromContext returns the profile Middleware attached, or nil.
func FromContext(c *dialog.Context) *Profile {
	p, _ := c.Get(ContextKey).(*Profile)
	return p
}

package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/chatflow/internal/dialog"
)

// DefaultTouchInterval bounds how often an active user's last_seen_at is written.
const DefaultTouchInterval = 5 * time.Minute

// Service provides business operations over profiles.
type Service struct {
	repo          Repository
	cache         *Cache
	log           *slog.Logger
	touchInterval time.Duration
	now           func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(repo Repository, cache *Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:          repo,
		cache:         cache,
		log:           log,
		touchInterval: DefaultTouchInterval,
		now:           time.Now,
	}
}

// Touch returns the profile of u, creating it on first contact and
// refreshing its identity fields when they changed or the last write is
// older than the touch interval.
func (s *Service) Touch(ctx context.Context, u *dialog.User) (*Profile, error) {
	if u == nil {
		return nil, errors.New("user is nil")
	}
	now := s.now().UTC()

	p, err := s.cache.Get(ctx, u.ID)
	if err != nil {
		s.logError("touch.cache_get", u.ID, err)
	}
	if p != nil && sameIdentity(p, u) && now.Sub(p.LastSeenAt) < s.touchInterval {
		return p, nil
	}

	if p == nil {
		p, err = s.repo.Find(ctx, u.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			p = &Profile{UserID: u.ID, CreatedAt: now}
		case err != nil:
			s.logError("touch.find", u.ID, err)
			return nil, fmt.Errorf("get profile: %w", err)
		}
	}

	p.Username = u.Username
	p.FirstName = u.FirstName
	p.LastName = u.LastName
	p.LastSeenAt = now

	if err := s.repo.Upsert(ctx, p); err != nil {
		s.logError("touch.upsert", u.ID, err)
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if err := s.cache.Set(ctx, p); err != nil {
		s.logError("touch.cache_set", u.ID, err)
	}

	return p, nil
}

// SetLanguage persists the preferred interface language of a user.
func (s *Service) SetLanguage(ctx context.Context, userID int64, lang string) error {
	err := s.repo.SetLanguage(ctx, userID, lang)
	if errors.Is(err, ErrNotFound) {
		now := s.now().UTC()
		err = s.repo.Upsert(ctx, &Profile{UserID: userID, Language: lang, CreatedAt: now, LastSeenAt: now})
	}
	if err != nil {
		s.logError("set_language", userID, err)
		return err
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logError("set_language.invalidate", userID, err)
	}
	return nil
}

func sameIdentity(p *Profile, u *dialog.User) bool {
	return p.Username == u.Username && p.FirstName == u.FirstName && p.LastName == u.LastName
}

func (s *Service) logError(operation string, userID int64, err error) {
	s.log.Error("user service operation failed",
		slog.String("operation", operation),
		slog.Int64("user_id", userID),
		slog.Any("error", err),
	)
}

package ratelimit

import (
	"errors"
	"strconv"
	"time"

	"github.com/Proton-105/chatflow/pkg/config"
)

// Rules resolves the configured limits.
type Rules struct {
	limit     int
	window    time.Duration
	whitelist map[int64]struct{}
}

// NewRules validates cfg. A zero limit disables throttling.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	r := &Rules{
		limit:     cfg.PerUser.Limit,
		whitelist: make(map[int64]struct{}, len(cfg.Whitelist)),
	}
	for _, id := range cfg.Whitelist {
		r.whitelist[id] = struct{}{}
	}

	if r.limit == 0 {
		return r, nil
	}
	if cfg.PerUser.Window == "" {
		return nil, errors.New("ratelimit: per_user.window is not set")
	}

	window, err := time.ParseDuration(cfg.PerUser.Window)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: per_user.window must be positive")
	}
	r.window = window

	return r, nil
}

// IsWhitelisted returns true if userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	_, ok := r.whitelist[userID]
	return ok
}

// PerUser returns the per-user limit and window.
func (r *Rules) PerUser() (int, time.Duration) {
	return r.limit, r.window
}

// Enabled reports whether any limit applies.
func (r *Rules) Enabled() bool {
	return r != nil && r.limit > 0
}

// UserKey is the limiter key of a user.
func UserKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

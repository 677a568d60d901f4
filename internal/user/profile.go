// Package user keeps a small persistent profile per chat user. The profile
// outlives sessions, so preferences such as the interface language survive a
// session expiring.
package user

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no profile exists for a user id.
var ErrNotFound = errors.New("user profile not found")

// Profile is what the bot remembers about a user between sessions.
type Profile struct {
	UserID     int64     `db:"user_id" json:"user_id"`
	Username   string    `db:"username" json:"username"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	Language   string    `db:"language" json:"language"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
}

func (p *Profile) clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

package session

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by Store.Get for unknown keys.
var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions by key. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (Session, error)
	Set(ctx context.Context, key string, s Session) error
	Delete(ctx context.Context, key string) error
}

// Pruner is implemented by stores that can drop sessions untouched since olderThan.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// Scanner is implemented by stores that can enumerate their sessions.
// Returning false from fn stops the scan.
type Scanner interface {
	Scan(ctx context.Context, fn func(key string, s Session) bool) error
}

// record is the persisted envelope shared by the remote stores.
type record struct {
	Data      Session   `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

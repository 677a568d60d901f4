// Package idempotency guarantees an operation runs at most once per key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

const (
	defaultLockTTL  = 5 * time.Minute
	pollInterval    = 100 * time.Millisecond
	maxLockAttempts = 20
)

var ErrRequestInProgress = errors.New("request with this key is already in progress")

type Operation func(ctx context.Context) (any, error)

type Result struct {
	Response  any
	FromCache bool
}

type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	log     *slog.Logger
	lockTTL time.Duration
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		log:     log,
		lockTTL: defaultLockTTL,
	}
}

// Execute runs fn unless a completed record exists for key. A failed fn leaves
// no record behind, so a redelivery of the same key runs again.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for attempt := 0; ; attempt++ {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if res, ok, err := cached(record); ok || err != nil {
			return res, err
		}

		locked, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}
		if locked {
			return m.runLocked(ctx, key, ttl, fn)
		}

		if record != nil && record.Status == StatusProcessing || attempt >= maxLockAttempts {
			return nil, ErrRequestInProgress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// cached reports whether record holds a completed result.
func cached(record *Record) (*Result, bool, error) {
	if record == nil || record.Status != StatusCompleted {
		return nil, false, nil
	}

	var response any
	if len(record.Response) > 0 {
		if err := json.Unmarshal(record.Response, &response); err != nil {
			return nil, true, err
		}
	}
	return &Result{Response: response, FromCache: true}, true, nil
}

// runLocked re-checks the record under the lock: another worker may have
// finished between the first lookup and Lock.
func (m *manager) runLocked(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		m.release(ctx, key)
		return nil, err
	}
	if res, ok, err := cached(record); ok || err != nil {
		m.release(ctx, key)
		return res, err
	}
	return m.run(ctx, key, ttl, fn)
}

func (m *manager) release(ctx context.Context, key string) {
	if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
		m.log.WarnContext(ctx, "failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
	}
}

func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	defer m.release(ctx, key)

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	responseBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: responseBytes}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: result}, nil
}

package session

import (
	"context"
	stderrors "errors"
	"time"

	apperrors "github.com/Proton-105/chatflow/internal/errors"
)

// BreakerStore guards a remote store with a circuit breaker. A missing session is
// a normal answer and does not count as a failure.
type BreakerStore struct {
	next    Store
	breaker *apperrors.CircuitBreaker
}

func WithCircuitBreaker(next Store, settings apperrors.BreakerSettings) *BreakerStore {
	return &BreakerStore{next: next, breaker: apperrors.NewCircuitBreaker(settings)}
}

func (s *BreakerStore) Get(ctx context.Context, key string) (Session, error) {
	var (
		sess     Session
		notFound bool
	)

	err := s.breaker.Call(func() error {
		var err error
		sess, err = s.next.Get(ctx, key)
		if stderrors.Is(err, ErrSessionNotFound) {
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return nil, wrapBreakerErr("get", err)
	}
	if notFound {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *BreakerStore) Set(ctx context.Context, key string, sess Session) error {
	return wrapBreakerErr("set", s.breaker.Call(func() error {
		return s.next.Set(ctx, key, sess)
	}))
}

func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	return wrapBreakerErr("delete", s.breaker.Call(func() error {
		return s.next.Delete(ctx, key)
	}))
}

// Prune forwards to the wrapped store when it supports pruning.
func (s *BreakerStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	p, ok := s.next.(Pruner)
	if !ok {
		return 0, nil
	}
	return p.Prune(ctx, olderThan)
}

// Scan forwards to the wrapped store when it supports scanning.
func (s *BreakerStore) Scan(ctx context.Context, fn func(key string, sess Session) bool) error {
	sc, ok := s.next.(Scanner)
	if !ok {
		return nil
	}
	return sc.Scan(ctx, fn)
}

// State exposes the breaker state for health reporting.
func (s *BreakerStore) State() apperrors.BreakerState {
	return s.breaker.State()
}

func wrapBreakerErr(op string, err error) error {
	if stderrors.Is(err, apperrors.ErrCircuitOpen) || stderrors.Is(err, apperrors.ErrHalfOpenTooManyRequests) {
		return apperrors.NewStoreError("session "+op, err)
	}
	return err
}

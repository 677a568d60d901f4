// Package handlers implements asynq task handlers.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/chatflow/internal/jobs"
)

// SessionPruner is satisfied by session.Cleaner.
type SessionPruner interface {
	Cleanup(ctx context.Context) (int, error)
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

type SessionPruneHandler struct {
	pruner SessionPruner
	log    *slog.Logger
}

func NewSessionPruneHandler(pruner SessionPruner, log *slog.Logger) *SessionPruneHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SessionPruneHandler{pruner: pruner, log: log}
}

func (h *SessionPruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.SessionPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "session prune: failed to decode payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	var (
		removed int
		err     error
	)
	if payload.OlderThan > 0 {
		removed, err = h.pruner.CleanupOlderThan(ctx, payload.OlderThan)
	} else {
		removed, err = h.pruner.Cleanup(ctx)
	}
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx, "session prune finished", slog.String("task_type", t.Type()), slog.Int("removed", removed))
	return nil
}

// KeySweeper is satisfied by idempotency.Cleaner.
type KeySweeper interface {
	Cleanup(ctx context.Context) (int, error)
}

type IdempotencySweepHandler struct {
	sweeper KeySweeper
	log     *slog.Logger
}

func NewIdempotencySweepHandler(sweeper KeySweeper, log *slog.Logger) *IdempotencySweepHandler {
	if log == nil {
		log = slog.Default()
	}
	return &IdempotencySweepHandler{sweeper: sweeper, log: log}
}

func (h *IdempotencySweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	removed, err := h.sweeper.Cleanup(ctx)
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx, "idempotency sweep finished", slog.String("task_type", t.Type()), slog.Int("removed", removed))
	return nil
}

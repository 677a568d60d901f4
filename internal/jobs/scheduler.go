package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	Register(cronspec string, task *asynq.Task) error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	log            *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		log:            log,
	}
}

// Register schedules task on cronspec.
func (s *scheduler) Register(cronspec string, task *asynq.Task) error {
	entryID, err := s.asynqScheduler.Register(cronspec, task)
	if err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered task",
		slog.String("task_type", task.Type()),
		slog.String("cron", cronspec),
		slog.String("entry_id", entryID),
	)

	return nil
}

func (s *scheduler) Run() {
	s.log.InfoContext(context.Background(), "scheduler: starting")

	go func() {
		if err := s.asynqScheduler.Run(); err != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", slog.Any("error", err))
		}
	}()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}

// RegisterMaintenance schedules the periodic housekeeping tasks.
func RegisterMaintenance(s Scheduler, cronspec string, idempotencyMaxTTL time.Duration) error {
	prune, err := NewSessionPruneTask(0)
	if err != nil {
		return err
	}
	if err := s.Register(cronspec, prune); err != nil {
		return err
	}

	if idempotencyMaxTTL <= 0 {
		return nil
	}

	sweep, err := NewIdempotencySweepTask(idempotencyMaxTTL)
	if err != nil {
		return err
	}
	return s.Register(cronspec, sweep)
}

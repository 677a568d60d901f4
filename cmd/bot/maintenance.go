package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/chatflow/internal/idempotency"
	"github.com/Proton-105/chatflow/internal/jobs"
	"github.com/Proton-105/chatflow/internal/jobs/handlers"
	"github.com/Proton-105/chatflow/internal/lifecycle"
	"github.com/Proton-105/chatflow/internal/session"
	"github.com/Proton-105/chatflow/pkg/metrics"
)

const sessionMetricsInterval = 30 * time.Second

// setupMaintenance schedules session pruning and the idempotency sweep. With
// jobs enabled the work runs as asynq cron tasks so only one instance prunes;
// otherwise each process prunes its own store on a ticker.
func (in *infra) setupMaintenance() error {
	if scanner, ok := in.store.(session.Scanner); ok {
		collector := metrics.NewSessionCollector(scanner, in.log, sessionMetricsInterval)
		in.background("session.metrics", func(ctx context.Context) error {
			collector.Run(ctx)
			return nil
		})
	}

	cleaner := session.NewCleaner(in.store, in.log, in.cfg.Session.TTL, in.cfg.Session.PruneInterval)

	if !in.cfg.Jobs.Enabled {
		if cleaner != nil {
			in.background("session.cleaner", func(ctx context.Context) error {
				cleaner.Run(ctx)
				return nil
			})
		}
		return nil
	}

	redisOpt := jobs.RedisOpt(in.cfg.Redis.Addr, in.cfg.Redis.Password, in.cfg.Redis.DB)
	worker := jobs.NewWorker(redisOpt, in.cfg.Jobs.Concurrency, in.log)

	if cleaner != nil {
		worker.RegisterHandler(jobs.TaskTypeSessionPrune, handlers.NewSessionPruneHandler(cleaner, in.log))
	} else {
		in.log.Info("session store does not expire sessions, prune tasks are acknowledged without work")
		worker.RegisterHandler(jobs.TaskTypeSessionPrune, asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
			return nil
		}))
	}

	var sweepTTL time.Duration
	if in.cfg.Idempotency.Enabled {
		sweepTTL = in.cfg.Idempotency.TTL
		store := idempotency.NewRedisStore(in.redis.Client, in.log, idempotency.DefaultPrefix)
		sweeper := idempotency.NewCleaner(in.redis.Client, in.log, store.Pattern(), sweepTTL)
		worker.RegisterHandler(jobs.TaskTypeIdempotencySweep, handlers.NewIdempotencySweepHandler(sweeper, in.log))
	}

	scheduler := jobs.NewScheduler(redisOpt, in.log)
	if err := jobs.RegisterMaintenance(scheduler, in.cfg.Jobs.PruneCron, sweepTTL); err != nil {
		return err
	}

	if err := worker.Start(); err != nil {
		return err
	}
	scheduler.Run()

	in.shutdown.Register(lifecycle.PhaseWorkers, "jobs.scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})
	in.shutdown.Register(lifecycle.PhaseWorkers, "jobs.worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})

	in.log.Info("maintenance jobs scheduled", slog.String("cron", in.cfg.Jobs.PruneCron))
	return nil
}

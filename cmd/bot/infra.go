package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/Proton-105/chatflow/internal/database"
	apperrors "github.com/Proton-105/chatflow/internal/errors"
	"github.com/Proton-105/chatflow/internal/health"
	"github.com/Proton-105/chatflow/internal/lifecycle"
	"github.com/Proton-105/chatflow/internal/session"
	"github.com/Proton-105/chatflow/pkg/config"
	appredis "github.com/Proton-105/chatflow/pkg/redis"
)

// task is a long-running loop started by serve and stopped by context cancellation.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// infra owns the connections shared by every command.
type infra struct {
	cfg      *config.Config
	log      *slog.Logger
	shutdown *lifecycle.Shutdown
	checker  *health.Checker

	// redis and db are nil when not configured, or unreachable and optional.
	redis *appredis.Client
	db    *sqlx.DB
	store session.Store

	tasks []task
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{
		cfg:      cfg,
		log:      log,
		shutdown: lifecycle.NewShutdown(log),
		checker:  health.NewChecker(log),
	}

	steps := []func(context.Context) error{in.openRedis, in.openDatabase, in.openSessionStore}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			if cerr := in.shutdown.Execute(context.WithoutCancel(ctx)); cerr != nil {
				log.Warn("cleanup after failed start", slog.Any("error", cerr))
			}
			return nil, err
		}
	}
	return in, nil
}

func (in *infra) background(name string, run func(ctx context.Context) error) {
	in.tasks = append(in.tasks, task{name: name, run: run})
}

func (in *infra) requiresRedis() bool {
	return in.cfg.Session.Backend == config.BackendRedis || in.cfg.Idempotency.Enabled || in.cfg.Jobs.Enabled
}

func (in *infra) openRedis(ctx context.Context) error {
	if in.cfg.Redis.Addr == "" {
		return nil
	}

	client, err := appredis.New(ctx, in.cfg.Redis)
	if err != nil {
		if in.requiresRedis() {
			return err
		}
		in.log.Warn("redis unavailable, continuing without it", slog.String("addr", in.cfg.Redis.Addr), slog.Any("error", err))
		return nil
	}

	in.redis = client
	in.checker.AddCheck("redis", health.NewRedisChecker(client))
	in.shutdown.Register(lifecycle.PhaseStorage, "redis", func(context.Context) error {
		return client.Close()
	})
	return nil
}

// openDatabase connects to postgres and applies pending migrations.
func (in *infra) openDatabase(ctx context.Context) error {
	if in.cfg.Database.DSN == "" {
		return nil
	}
	required := in.cfg.Session.Backend == config.BackendPostgres

	db, err := database.Connect(ctx, in.cfg.Database, in.log)
	if err != nil {
		if required {
			return err
		}
		in.log.Warn("database unavailable, continuing with in-memory repositories", slog.Any("error", err))
		return nil
	}
	in.shutdown.Register(lifecycle.PhaseStorage, "postgres", func(context.Context) error {
		return db.Close()
	})

	if err := database.NewMigrator(in.cfg.Database.DSN, in.log).Up(ctx); err != nil {
		return err
	}

	in.db = db
	in.checker.AddCheck("postgres", health.NewDBChecker(db))
	return nil
}

func (in *infra) openSessionStore(context.Context) error {
	cfg := in.cfg.Session

	var store session.Store
	switch cfg.Backend {
	case config.BackendMemory:
		store = session.NewMemoryStore()
	case config.BackendRedis:
		store = session.NewRedisStore(appredis.NewMetricsClient(in.redis), in.log, cfg.KeyPrefix, cfg.TTL)
	case config.BackendPostgres:
		store = session.NewPostgresStore(in.db, in.log)
	case config.BackendBolt:
		bolt, err := session.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return err
		}
		in.checker.AddCheck("sessions", bolt)
		in.shutdown.Register(lifecycle.PhaseStorage, "bolt", func(context.Context) error {
			return bolt.Close()
		})
		store = bolt
	default:
		return fmt.Errorf("unknown session backend %q", cfg.Backend)
	}

	remote := cfg.Backend == config.BackendRedis || cfg.Backend == config.BackendPostgres
	if remote && cfg.CircuitBreaker {
		store = session.WithCircuitBreaker(store, apperrors.BreakerSettings{})
	}

	in.store = store
	in.log.Info("session store ready", slog.String("backend", cfg.Backend), slog.Bool("circuit_breaker", remote && cfg.CircuitBreaker))
	return nil
}

package main

import (
	"context"
	"time"

	"github.com/Proton-105/chatflow/internal/booking"
	"github.com/Proton-105/chatflow/internal/dialog"
	apperrors "github.com/Proton-105/chatflow/internal/errors"
	"github.com/Proton-105/chatflow/internal/i18n"
	"github.com/Proton-105/chatflow/internal/idempotency"
	"github.com/Proton-105/chatflow/internal/middleware"
	"github.com/Proton-105/chatflow/internal/ratelimit"
	"github.com/Proton-105/chatflow/internal/user"
	"github.com/Proton-105/chatflow/pkg/metrics"
)

// newRouter builds the dialogue router with its middleware chain and the
// booking flow. Middlewares run in order: logging, duplicate suppression,
// rate limiting, session, profile, metrics.
func (in *infra) newRouter(transport dialog.Transport) (*dialog.Router, error) {
	router := dialog.NewRouter(transport,
		dialog.WithLogger(in.log),
		dialog.WithErrorHandler(apperrors.NewHandler(in.log, in.cfg.Sentry.Enabled)),
		dialog.WithTransitionRecorder(metrics.RecordFlowTransition),
	)

	router.Use(dialog.LoggingMiddleware())

	if in.cfg.Idempotency.Enabled {
		store := idempotency.NewRedisStore(in.redis.Client, in.log, idempotency.DefaultPrefix)
		router.Use(middleware.Idempotency(idempotency.NewManager(store, in.log), in.cfg.Idempotency.TTL, in.log))
	}

	limit, err := in.rateLimit()
	if err != nil {
		return nil, err
	}
	if limit != nil {
		router.Use(limit)
	}

	profiles := in.profiles()
	router.Use(
		dialog.SessionMiddleware(in.store),
		user.Middleware(profiles),
		middleware.Metrics,
	)

	translations, err := i18n.Load(in.cfg.I18n.DefaultLang)
	if err != nil {
		return nil, err
	}

	var bookings booking.Repository = booking.NewMemoryRepository()
	if in.db != nil {
		bookings = booking.NewPostgresRepository(in.db)
	}

	err = booking.Register(router, booking.Deps{
		Catalog:     booking.DefaultCatalog(),
		Repo:        bookings,
		I18n:        translations,
		DefaultLang: in.cfg.I18n.DefaultLang,
		Profiles:    profiles,
	})
	if err != nil {
		return nil, err
	}

	return router, nil
}

// rateLimit returns nil when limiting is disabled. With redis available the
// sliding window is shared between instances and falls back to memory.
func (in *infra) rateLimit() (dialog.Middleware, error) {
	if !in.cfg.RateLimit.Enabled {
		return nil, nil
	}
	rules, err := ratelimit.NewRules(in.cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	if !rules.Enabled() {
		return nil, nil
	}

	memory := ratelimit.NewMemoryLimiter()
	_, window := rules.PerUser()
	in.background("ratelimit.cleanup", func(ctx context.Context) error {
		memory.Run(ctx, time.Minute, 2*window)
		return nil
	})

	var limiter ratelimit.Limiter = memory
	if in.redis != nil {
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(in.redis.Client, in.log), memory, in.log)
	}

	return middleware.NewRateLimitMiddleware(limiter, rules, in.log).Handle, nil
}

func (in *infra) profiles() *user.Service {
	var repo user.Repository = user.NewMemoryRepository()
	if in.db != nil {
		repo = user.NewPostgresRepository(in.db, in.log)
	}

	var cache *user.Cache
	if in.redis != nil && in.cfg.Profiles.CacheTTL > 0 {
		cache = user.NewCache(in.redis.Client, in.cfg.Profiles.CacheTTL)
	}

	return user.NewService(repo, cache, in.log)
}

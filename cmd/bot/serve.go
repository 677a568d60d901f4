package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Proton-105/chatflow/internal/bot"
	"github.com/Proton-105/chatflow/internal/health"
	"github.com/Proton-105/chatflow/internal/lifecycle"
	"github.com/Proton-105/chatflow/pkg/config"
	"github.com/Proton-105/chatflow/pkg/graceful"
	"github.com/Proton-105/chatflow/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot with its ops HTTP server",
		Long:  `Starts update intake (long polling or webhook), background maintenance, and the /healthz, /readyz and /metrics endpoints.`,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, v, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	config.Watch(v, log.Logger, func(next *config.Config) {
		log.Level.Set(logger.ParseLevel(next.Logger.Level))
	})

	log.Info("starting chatflow",
		slog.String("mode", cfg.Bot.Mode),
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("http_port", cfg.Server.Port),
	)

	in, err := openInfra(ctx, cfg, log.Logger)
	if err != nil {
		log.Error("failed to initialize infrastructure", slog.Any("error", err))
		return err
	}

	if err := serve(ctx, in); err != nil {
		log.Error("chatflow stopped with error", slog.Any("error", err))
		return err
	}

	log.Info("chatflow stopped")
	return nil
}

func serve(ctx context.Context, in *infra) error {
	cfg := in.cfg

	tb, err := bot.NewTelebot(cfg.Bot)
	if err != nil {
		return errors.Join(err, in.shutdown.Execute(context.WithoutCancel(ctx)))
	}
	transport := bot.NewTransport(tb, in.log)
	in.checker.AddCheck("telegram", health.NewTelegramChecker(transport))

	router, err := in.newRouter(transport)
	if err != nil {
		return errors.Join(err, in.shutdown.Execute(context.WithoutCancel(ctx)))
	}
	if err := in.setupMaintenance(); err != nil {
		return errors.Join(err, in.shutdown.Execute(context.WithoutCancel(ctx)))
	}

	probes := lifecycle.NewProbes(in.checker, in.log)
	in.background("probes", func(ctx context.Context) error {
		<-ctx.Done()
		probes.MarkDraining()
		return nil
	})

	var webhook http.Handler
	switch cfg.Bot.Mode {
	case config.ModeWebhook:
		webhook = bot.NewWebhookHandler(router.Handle, cfg.Bot.WebhookSecret, in.log)
		in.background("webhook.register", func(context.Context) error {
			if cfg.Bot.WebhookURL != "" {
				if err := bot.SetWebhook(tb, cfg.Bot.WebhookURL, cfg.Bot.WebhookSecret); err != nil {
					return err
				}
				in.log.Info("webhook registered", slog.String("url", cfg.Bot.WebhookURL))
			}
			probes.MarkReady()
			return nil
		})
	default:
		poller := bot.NewPoller(tb, router.Handle, cfg.Bot.Timeout, cfg.Bot.PollBackoff, in.log)
		poller.OnStarted = probes.MarkReady
		in.background("poller", poller.Run)
	}

	srv := graceful.NewServer(in.log, &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newOpsHandler(in.log, probes, cfg.Bot.WebhookPath, webhook),
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)
	in.background("http", srv.ListenAndServe)

	runErr := in.run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, in.shutdown.Execute(shutdownCtx))
}

// run starts every background task and blocks until ctx ends or one of them
// fails. The first failure cancels the others and is returned.
func (in *infra) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for _, t := range in.tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()

			if err := t.run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				in.log.Error("background task failed", slog.String("task", t.name), slog.Any("error", err))
				once.Do(func() {
					firstErr = fmt.Errorf("%s: %w", t.name, err)
					cancel()
				})
			}
		}(t)
	}

	<-runCtx.Done()
	in.log.Info("shutting down", slog.Int("tasks", len(in.tasks)))
	wg.Wait()

	return firstErr
}

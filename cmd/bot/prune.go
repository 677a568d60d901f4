package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Proton-105/chatflow/internal/jobs"
	"github.com/Proton-105/chatflow/internal/session"
	"github.com/Proton-105/chatflow/pkg/logger"
)

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop sessions untouched for longer than the session TTL",
		Long: `Prunes idle sessions once. With jobs enabled the work is enqueued as a
session:prune task for the worker pool; otherwise it runs against the store directly.`,
		Args: cobra.NoArgs,
		RunE: runPrune,
	}
	cmd.Flags().Duration("older-than", 0, "idle age to prune (default session.ttl)")
	return cmd
}

func runPrune(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	olderThan, _ := cmd.Flags().GetDuration("older-than")

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if olderThan <= 0 {
		olderThan = cfg.Session.TTL
	}
	if olderThan <= 0 {
		return errors.New("nothing to prune: session.ttl is not set and --older-than was not given")
	}

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	if cfg.Jobs.Enabled {
		task, err := jobs.NewSessionPruneTask(olderThan)
		if err != nil {
			return err
		}
		manager := jobs.NewManager(jobs.RedisOpt(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), log.Logger)
		defer func() { _ = manager.Close() }()

		_, err = manager.Enqueue(ctx, task)
		return err
	}

	in, err := openInfra(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := in.shutdown.Execute(closeCtx); err != nil {
			log.Warn("close after prune", slog.Any("error", err))
		}
	}()

	cleaner := session.NewCleaner(in.store, log.Logger, olderThan, 0)
	if cleaner == nil {
		return fmt.Errorf("session backend %q cannot prune", cfg.Session.Backend)
	}

	removed, err := cleaner.CleanupOlderThan(ctx, olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d sessions\n", removed)
	return nil
}

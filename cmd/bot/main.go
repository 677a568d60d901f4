package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Proton-105/chatflow/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatflow",
		Short:         "Stateful Telegram dialogue bot",
		Long:          `chatflow routes Telegram updates to commands and multi-step flows, keeping a session per user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running without a subcommand serves the bot.
		RunE: runServe,
	}

	root.PersistentFlags().String("config", "", "path to the YAML config file (default ./configs/$APP_ENV.yaml)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newPruneCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, *viper.Viper, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("CONFIG_FILE", path); err != nil {
			return nil, nil, err
		}
	}

	cfg, v, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, v, nil
}

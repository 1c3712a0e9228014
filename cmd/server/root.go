package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reelsched/api/internal/config"
	"github.com/reelsched/api/internal/logging"
)

var (
	cfg    *config.Config
	logger *zerolog.Logger

	// set at build time with -ldflags "-X main.version=..."
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:           "reelsched",
	Short:         "Video job worker, job API and bulk post dispatcher",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		logger = logging.New(cfg.Log)
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Version = version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Package cli defines the harvester command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newsgrid/harvester/internal/config"
	"github.com/newsgrid/harvester/internal/logging"
)

var cfgFile string

// NewRootCmd creates and configures the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Priority-queue article ingestion service.",
		Long: `harvester drains article URLs from a prioritized Redis queue, fetches
each page (static HTTP first, a headless browser when that is not enough),
extracts structured metadata, and stores one deduplicated record per URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(newConsumeCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newDashboardCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the environment, the configuration, and the logger shared by
// every subcommand. A missing .env file is not an error.
func setup() (config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func syncLogger(logger *zap.Logger) {
	if err := logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", err)
	}
}

// Package cmd defines and implements the CLI commands for the
// research-crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumira/research-crawler/internal/config"
	"github.com/lumira/research-crawler/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research-crawler",
		Short: "Concurrent source acquisition and scoring for research runs.",
		Long: `research-crawler fetches candidate sources over HTTP, extracts and
normalizes their text, deduplicates them, scores their relevance, and emits a
ranked JSON report of the best sources found.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus RESEARCH_* env)")

	cmd.AddCommand(newRunCmd())

	return cmd
}

// loadConfig resolves the effective configuration for a command invocation.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildLogger constructs the process logger from config.
func buildLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

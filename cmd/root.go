// Package cmd defines and implements the CLI commands for the luxcrawl executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beautelab/luxcrawl/internal/config"
	"github.com/beautelab/luxcrawl/internal/logging"
)

var cfgFile string

// app bundles the services every subcommand needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newApp is a variable so tests can substitute a factory.
var newApp = func() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "luxcrawl",
		Short: "Compliance-gated crawler for luxury beauty market research",
		Long: `luxcrawl is the ingestion tool for the luxury beauty pricing project.
It fetches product and review pages under strict robots.txt compliance,
adapts its request rate to server feedback, and keeps audit manifests
for every page it touches. Companion commands validate the resulting
silver tables against fabrication and provenance gates.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults + LUXCRAWL_* env)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newGatesCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beautelab/luxcrawl/internal/quality"
	"github.com/beautelab/luxcrawl/internal/silver"
)

func newGatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gates",
		Short: "Run the dashboard-style quality gates and print the results",
		RunE:  runGatesCommand,
	}
}

func runGatesCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := newApp()
	if err != nil {
		return err
	}
	defer appInstance.close()

	cfg := appInstance.cfg
	logger := appInstance.logger

	store, err := silver.Open(silver.Config{
		Driver: cfg.Silver.Driver,
		DSN:    cfg.Silver.DSN,
		Dir:    cfg.Silver.Dir,
	})
	if err != nil {
		return fmt.Errorf("open silver store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("failed to close silver store", zap.Error(cerr))
		}
	}()

	results := quality.New(store.DB(), logger).RunAll(cmd.Context())

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gate results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if results.OverallStatus != quality.StatusPass {
		return fmt.Errorf("quality gates failed: %s", results.OverallStatus)
	}
	return nil
}

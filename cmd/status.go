package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured data locations and on-disk artifact counts",
		RunE:  runStatusCommand,
	}
}

func runStatusCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := newApp()
	if err != nil {
		return err
	}
	defer appInstance.close()

	cfg := appInstance.cfg
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "silver store:    %s (%s)\n", cfg.Silver.DSN, cfg.Silver.Driver)
	fmt.Fprintf(out, "silver artifacts: %s\n", cfg.Silver.Dir)
	fmt.Fprintf(out, "bronze storage:  %s (%s)\n", storageLocation(cfg.Storage.Backend, cfg.Storage.BaseDir, cfg.Storage.GCSBucket), cfg.Storage.Backend)
	fmt.Fprintf(out, "robots snapshots: %s (%d files)\n", cfg.Robots.Dir, countFiles(cfg.Robots.Dir, "*.txt"))
	fmt.Fprintf(out, "run manifests:   %s (%d files)\n",
		filepath.Join(cfg.Storage.BaseDir, "manifests"),
		countFiles(filepath.Join(cfg.Storage.BaseDir, "manifests"), "run_*.json"),
	)

	reportPath := filepath.Join(cfg.Silver.Dir, "integrity_report.json")
	if _, err := os.Stat(reportPath); err == nil {
		fmt.Fprintf(out, "integrity report: %s\n", reportPath)
	} else {
		fmt.Fprintln(out, "integrity report: not yet generated")
	}
	return nil
}

func storageLocation(backend, baseDir, bucket string) string {
	if backend == "gcs" {
		return "gs://" + bucket
	}
	return baseDir
}

func countFiles(dir, pattern string) int {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0
	}
	return len(matches)
}

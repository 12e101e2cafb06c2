package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beautelab/luxcrawl/internal/api"
	"github.com/beautelab/luxcrawl/internal/integrity"
	"github.com/beautelab/luxcrawl/internal/quality"
	"github.com/beautelab/luxcrawl/internal/robots"
	"github.com/beautelab/luxcrawl/internal/silver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the monitoring HTTP API",
		Long: `Exposes health, Prometheus metrics, quality gate, integrity, and
compliance manifest endpoints over HTTP.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
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

	parser, err := robots.NewParser(robots.ParserConfig{
		Dir:      cfg.Robots.Dir,
		BotToken: cfg.Crawler.BotToken,
		CacheTTL: cfg.RobotsCacheTTL(),
		Timeout:  cfg.RobotsTimeout(),
		FailOpen: cfg.Robots.FailOpen,
	}, logger)
	if err != nil {
		return fmt.Errorf("init robots parser: %w", err)
	}
	compliance := robots.NewCompliance(parser, logger)

	server := api.NewServer(
		logger,
		quality.New(store.DB(), logger),
		integrity.NewChecker(store, logger),
		compliance,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("monitoring server listening", zap.Int("port", cfg.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

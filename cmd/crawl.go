package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	systemclock "github.com/beautelab/luxcrawl/internal/clock/system"
	"github.com/beautelab/luxcrawl/internal/config"
	"github.com/beautelab/luxcrawl/internal/crawler"
	collyfetcher "github.com/beautelab/luxcrawl/internal/fetcher/colly"
	"github.com/beautelab/luxcrawl/internal/id/uuid"
	memorypublisher "github.com/beautelab/luxcrawl/internal/publisher/memory"
	pubsubpublisher "github.com/beautelab/luxcrawl/internal/publisher/pubsub"
	"github.com/beautelab/luxcrawl/internal/ratelimit"
	"github.com/beautelab/luxcrawl/internal/robots"
	"github.com/beautelab/luxcrawl/internal/storage"
	"github.com/beautelab/luxcrawl/internal/storage/local"
	"github.com/beautelab/luxcrawl/internal/storage/postgres"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run a compliance-gated crawl over the configured seed URLs",
		Long: `Fetches the configured seed URLs one domain at a time. Every URL is
checked against the domain's robots.txt before fetching, request pacing
adapts to 403/429/503 feedback, raw bodies land in the bronze blob
store, and page and run manifests are persisted for audit.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := newApp()
	if err != nil {
		return err
	}
	defer appInstance.close()

	ctx := cmd.Context()
	cfg := appInstance.cfg
	logger := appInstance.logger

	if len(cfg.Crawler.Seeds) == 0 {
		return errors.New("crawler.seeds is empty; nothing to crawl")
	}

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
	parser.SetPacer(ratelimit.NewDomain(ratelimit.DomainConfig{RPS: cfg.RateLimit.DomainRPS}))
	compliance := robots.NewCompliance(parser, logger)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	})

	blobs, err := storage.NewBlobStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	manifests, err := buildManifestStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, cleanup, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	seedsByDomain, order := groupSeedsByDomain(cfg.Crawler.Seeds)
	for _, domain := range order {
		limiter := ratelimit.NewAdaptive(ratelimit.AdaptiveConfig{
			RPS:    cfg.RateLimit.RPS,
			MinRPS: cfg.RateLimit.MinRPS,
			MaxRPS: cfg.RateLimit.MaxRPS,
		})
		driver := crawler.NewDriver(
			compliance,
			limiter,
			fetcher,
			blobs,
			manifests,
			publisher,
			uuid.New(),
			systemclock.Clock{},
			crawler.Config{
				UserAgent:      cfg.Crawler.UserAgent,
				MaxPages:       cfg.Crawler.MaxPages,
				BlobPrefix:     cfg.Storage.Prefix,
				ContentType:    cfg.Storage.ContentType,
				Topic:          cfg.PubSub.TopicName,
				MaxRetries:     cfg.HTTP.MaxRetries,
				BackoffInitial: cfg.BackoffInitial(),
				BackoffMax:     cfg.BackoffMax(),
			},
			logger,
		)

		run, err := driver.Crawl(ctx, domain, seedsByDomain[domain])
		if err != nil {
			logger.Error("crawl failed", zap.String("domain", domain), zap.Error(err))
			continue
		}
		logger.Info("crawl finished",
			zap.String("domain", domain),
			zap.String("run_id", run.RunID),
			zap.Int("pages_fetched", run.PagesFetched),
			zap.Int("blocked_requests", run.BlockedRequests),
			zap.Int("errors", run.ErrorsCount),
		)
	}
	return nil
}

func buildManifestStore(ctx context.Context, cfg config.Config) (crawler.ManifestStore, error) {
	if cfg.Manifest.DSN != "" {
		store, err := postgres.NewManifestStore(ctx, postgres.ManifestStoreConfig{
			DSN:      cfg.Manifest.DSN,
			RunTable: cfg.Manifest.Table,
			MaxConns: cfg.Manifest.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres manifest store: %w", err)
		}
		return store, nil
	}
	store, err := local.NewManifestStore(filepath.Join(cfg.Storage.BaseDir, "manifests"))
	if err != nil {
		return nil, fmt.Errorf("init local manifest store: %w", err)
	}
	return store, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("pubsub not configured; publishing in-memory only")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicName)
	cleanup := func() {
		topic.Stop()
		if cerr := client.Close(); cerr != nil {
			logger.Warn("failed to close pubsub client", zap.Error(cerr))
		}
	}
	return pubsubpublisher.New(topic), cleanup, nil
}

func groupSeedsByDomain(seeds []string) (map[string][]string, []string) {
	grouped := make(map[string][]string)
	var order []string
	for _, seed := range seeds {
		domain := crawler.Domain(seed)
		if domain == "" {
			continue
		}
		if _, seen := grouped[domain]; !seen {
			order = append(order, domain)
		}
		grouped[domain] = append(grouped[domain], seed)
	}
	return grouped, order
}

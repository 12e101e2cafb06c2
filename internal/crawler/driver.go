package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/beautelab/luxcrawl/internal/metrics"
	"github.com/beautelab/luxcrawl/internal/ratelimit"
	"github.com/beautelab/luxcrawl/internal/robots"
)

// Config controls Driver behavior.
type Config struct {
	UserAgent string
	// MaxPages caps successfully fetched pages per run.
	MaxPages    int
	BlobPrefix  string
	ContentType string
	Topic       string

	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Driver runs the compliance-gated crawl loop for one site at a time:
// robots check, adaptive pacing, fetch, feedback, bronze persistence,
// and manifest bookkeeping.
type Driver struct {
	compliance *robots.Compliance
	limiter    *ratelimit.AdaptiveRPS
	fetcher    Fetcher
	blobs      BlobStore
	manifests  ManifestStore
	publisher  Publisher
	ids        IDGenerator
	clock      Clock
	cfg        Config
	logger     *zap.Logger
}

// NewDriver constructs a Driver.
func NewDriver(
	compliance *robots.Compliance,
	limiter *ratelimit.AdaptiveRPS,
	fetcher Fetcher,
	blobs BlobStore,
	manifests ManifestStore,
	publisher Publisher,
	ids IDGenerator,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Driver {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		compliance: compliance,
		limiter:    limiter,
		fetcher:    fetcher,
		blobs:      blobs,
		manifests:  manifests,
		publisher:  publisher,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Crawl fetches up to MaxPages URLs from one domain, honoring robots
// rules and adaptive pacing, and returns the run manifest.
func (d *Driver) Crawl(ctx context.Context, domain string, seeds []string) (RunManifest, error) {
	runID, err := d.ids.NewID()
	if err != nil {
		return RunManifest{}, fmt.Errorf("mint run id: %w", err)
	}
	run := RunManifest{
		RunID:   runID,
		StartTS: d.clock.Now(),
		Domains: []string{domain},
	}

	allowed, _ := d.compliance.CheckDomain(ctx, domain)
	if !allowed {
		d.logger.Warn("domain disallows crawling", zap.String("domain", domain))
		return d.finishRun(ctx, run)
	}

	var (
		total      int
		blocked    int
		violations int
	)
	for _, seed := range seeds {
		// The budget counts pages actually fetched; robots-blocked
		// seeds do not consume it.
		if run.PagesFetched >= d.cfg.MaxPages {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if !d.compliance.CheckURL(ctx, seed, domain) {
			blocked++
			metrics.ObserveBlocked(domain)
			d.logger.Info("url blocked by robots.txt", zap.String("url", seed))
			d.recordPage(ctx, PageManifest{
				URL:           seed,
				Site:          domain,
				ScrapeTS:      d.clock.Now(),
				RobotsAllowed: false,
				CrawlDelay:    d.compliance.CrawlDelay(ctx, domain),
				UserAgent:     d.cfg.UserAgent,
			})
			continue
		}

		d.limiter.Wait()
		resp, err := d.fetchWithRetry(ctx, FetchRequest{URL: seed, Site: domain})
		total++
		if err != nil {
			run.ErrorsCount++
			d.logger.Error("fetch failed", zap.String("url", seed), zap.Error(err))
			continue
		}
		d.limiter.Feedback(resp.StatusCode)
		metrics.ObservePage(domain, strconv.Itoa(resp.StatusCode))

		if resp.StatusCode == 403 || resp.StatusCode == 429 || resp.StatusCode == 503 {
			violations++
			d.logger.Warn("rate limited or blocked",
				zap.String("url", seed),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}
		if resp.StatusCode != 200 {
			d.logger.Warn("http error", zap.String("url", seed), zap.Int("status", resp.StatusCode))
			continue
		}

		page, err := d.persistPage(ctx, domain, resp)
		if err != nil {
			run.ErrorsCount++
			d.logger.Error("persist page failed", zap.String("url", seed), zap.Error(err))
			continue
		}
		run.PagesFetched++
		d.publishPage(ctx, run.RunID, page)
	}

	run.BlockedRequests = blocked
	d.compliance.UpdateManifest(domain, robots.ManifestUpdate{
		TotalRequests:       &total,
		BlockedRequests:     &blocked,
		RateLimitViolations: &violations,
	})

	return d.finishRun(ctx, run)
}

func (d *Driver) finishRun(ctx context.Context, run RunManifest) (RunManifest, error) {
	end := d.clock.Now()
	run.EndTS = &end
	run.Compliance = d.compliance.Manifests()
	for _, m := range run.Compliance {
		d.compliance.UpdateManifest(m.Domain, robots.ManifestUpdate{EndTS: &end})
	}
	if d.manifests != nil {
		if err := d.manifests.SaveRun(ctx, run); err != nil {
			return run, fmt.Errorf("save run manifest: %w", err)
		}
	}
	return run, nil
}

// fetchWithRetry retries transient failures with exponential backoff,
// honoring Retry-After on 429 responses.
func (d *Driver) fetchWithRetry(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	backoff := d.cfg.BackoffInitial
	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		resp, err := d.fetcher.Fetch(ctx, req)
		if err == nil {
			if resp.StatusCode == 429 || resp.StatusCode >= 500 {
				if attempt == d.cfg.MaxRetries {
					return resp, nil
				}
				wait := backoff
				if retryAfter := parseRetryAfter(resp.Headers); retryAfter > 0 {
					wait = retryAfter
				}
				d.logger.Warn("retrying after server pushback",
					zap.String("url", req.URL),
					zap.Int("status", resp.StatusCode),
					zap.Duration("wait", wait),
				)
				if err := sleepCtx(ctx, wait); err != nil {
					return FetchResponse{}, err
				}
				backoff = nextBackoff(backoff, d.cfg.BackoffMax)
				continue
			}
			return resp, nil
		}
		lastErr = err
		if attempt == d.cfg.MaxRetries {
			break
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return FetchResponse{}, err
		}
		backoff = nextBackoff(backoff, d.cfg.BackoffMax)
	}
	return FetchResponse{}, fmt.Errorf("fetch %s: %w", req.URL, lastErr)
}

func (d *Driver) persistPage(ctx context.Context, domain string, resp FetchResponse) (PageManifest, error) {
	sum := sha256.Sum256(resp.Body)
	hash := hex.EncodeToString(sum[:])

	var uri string
	if d.blobs != nil {
		path := d.buildBlobPath(domain, hash)
		var err error
		uri, err = d.blobs.PutObject(ctx, path, d.cfg.ContentType, resp.Body)
		if err != nil {
			return PageManifest{}, fmt.Errorf("put object: %w", err)
		}
	}

	page := PageManifest{
		URL:           resp.URL,
		Site:          domain,
		ScrapeTS:      d.clock.Now(),
		StatusCode:    resp.StatusCode,
		ContentLength: len(resp.Body),
		HTMLHash:      hash,
		RobotsAllowed: true,
		CrawlDelay:    d.compliance.CrawlDelay(ctx, domain),
		UserAgent:     d.cfg.UserAgent,
		BlobURI:       uri,
	}
	d.recordPage(ctx, page)
	return page, nil
}

func (d *Driver) recordPage(ctx context.Context, page PageManifest) {
	if d.manifests == nil {
		return
	}
	if err := d.manifests.SavePage(ctx, page); err != nil {
		d.logger.Error("save page manifest failed", zap.String("url", page.URL), zap.Error(err))
	}
}

func (d *Driver) publishPage(ctx context.Context, runID string, page PageManifest) {
	if d.publisher == nil || d.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":    runID,
		"url":       page.URL,
		"site":      page.Site,
		"blob_uri":  page.BlobURI,
		"hash":      page.HTMLHash,
		"status":    page.StatusCode,
		"timestamp": page.ScrapeTS.Format(time.RFC3339),
	}
	if _, err := d.publisher.Publish(ctx, d.cfg.Topic, payload); err != nil {
		d.logger.Warn("publish page event failed", zap.String("url", page.URL), zap.Error(err))
	}
}

func (d *Driver) buildBlobPath(domain, hash string) string {
	prefix := strings.Trim(d.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", domain, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, domain, hash)
}

// Domain extracts the host from a URL for manifest keying.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func parseRetryAfter(headers http.Header) time.Duration {
	if headers == nil {
		return 0
	}
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

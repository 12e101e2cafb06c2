package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beautelab/luxcrawl/internal/metrics"
)

const (
	// DefaultCrawlDelay is the system-wide minimum politeness delay
	// applied when robots.txt specifies none.
	DefaultCrawlDelay = 1.0

	maxRobotsBody = 1 << 20
)

// ParserConfig controls robots.txt fetching and caching.
type ParserConfig struct {
	// Dir is where raw robots.txt snapshots are written, one file per
	// domain, overwritten on each fetch.
	Dir string
	// BotToken is the user-agent token whose directive blocks are
	// honored in addition to "*".
	BotToken string
	// CacheTTL bounds how long a parsed ruleset is reused.
	CacheTTL time.Duration
	// Timeout bounds the robots.txt HTTP fetch.
	Timeout time.Duration
	// FailOpen substitutes a permissive ruleset when the fetch fails.
	// When false the fallback denies everything instead.
	FailOpen bool
}

// FetchPacer throttles outbound robots.txt fetches per domain.
type FetchPacer interface {
	Wait(ctx context.Context, rawURL string) error
}

type cacheEntry struct {
	fetchedAt time.Time
	rules     *Rules
}

// Parser fetches, parses, and caches robots.txt rulesets per domain.
type Parser struct {
	cfg    ParserConfig
	client *http.Client
	logger *zap.Logger
	pacer  FetchPacer

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewParser builds a Parser. The snapshot directory is created eagerly
// so a misconfigured path fails at startup, not mid-crawl.
func NewParser(cfg ParserConfig, logger *zap.Logger) (*Parser, error) {
	if cfg.BotToken == "" {
		cfg.BotToken = "luxcrawl"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create robots dir: %w", err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}, nil
}

// SetPacer installs a per-domain pacer applied before each robots.txt
// fetch. A nil pacer disables pacing.
func (p *Parser) SetPacer(pacer FetchPacer) {
	p.pacer = pacer
}

// Prime inserts a ruleset into the cache as if it had just been
// fetched, for warm-starting from snapshots and for tests.
func (p *Parser) Prime(domain string, rules *Rules) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[domain] = cacheEntry{fetchedAt: time.Now(), rules: rules}
}

// FetchRobots returns the ruleset for a domain, from cache when fresher
// than the TTL. On any fetch or parse failure it returns the configured
// fallback ruleset instead of propagating the error.
func (p *Parser) FetchRobots(ctx context.Context, domain string) *Rules {
	p.mu.Lock()
	entry, ok := p.cache[domain]
	p.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < p.cfg.CacheTTL {
		p.logger.Debug("using cached robots.txt", zap.String("domain", domain))
		metrics.ObserveRobotsFetch(domain, "cache")
		return entry.rules
	}

	robotsURL := fmt.Sprintf("https://%s/robots.txt", domain)
	p.logger.Info("fetching robots.txt", zap.String("domain", domain), zap.String("url", robotsURL))

	rules, err := p.fetch(ctx, domain, robotsURL)
	if err != nil {
		p.logger.Warn("failed to fetch robots.txt",
			zap.String("domain", domain),
			zap.Error(err),
		)
		metrics.ObserveRobotsFetch(domain, "fallback")
		return p.fallbackRules(err)
	}

	p.mu.Lock()
	p.cache[domain] = cacheEntry{fetchedAt: time.Now(), rules: rules}
	p.mu.Unlock()

	p.logger.Info("fetched robots.txt",
		zap.String("domain", domain),
		zap.Int("allow_paths", len(rules.Allow)),
		zap.Int("disallow_paths", len(rules.Disallow)),
	)
	metrics.ObserveRobotsFetch(domain, "ok")
	return rules
}

// CachedRules returns the cached ruleset for a domain without fetching.
// It returns nil when no fetch has succeeded for the domain yet.
func (p *Parser) CachedRules(domain string) *Rules {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.cache[domain]; ok {
		return entry.rules
	}
	return nil
}

func (p *Parser) fetch(ctx context.Context, domain, robotsURL string) (*Rules, error) {
	if p.pacer != nil {
		if err := p.pacer.Wait(ctx, robotsURL); err != nil {
			return nil, fmt.Errorf("pace robots fetch: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("robots fetch status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}

	rules := p.ParseContent(string(body), domain)
	rules.ETag = resp.Header.Get("ETag")
	rules.LastMod = resp.Header.Get("Last-Modified")

	if p.cfg.Dir != "" {
		snapshot := filepath.Join(p.cfg.Dir, domain+".txt")
		if werr := os.WriteFile(snapshot, body, 0o600); werr != nil {
			return nil, fmt.Errorf("write robots snapshot: %w", werr)
		}
	}
	return rules, nil
}

func (p *Parser) fallbackRules(cause error) *Rules {
	rules := &Rules{
		UserAgent: "*",
		FetchedAt: time.Now(),
		Err:       cause.Error(),
	}
	if p.cfg.FailOpen {
		rules.Allow = []string{"/"}
	} else {
		rules.Disallow = []string{"/"}
	}
	return rules
}

// ParseContent parses robots.txt text into a ruleset. Only directives
// inside "*" or the bot's own user-agent blocks are honored.
func (p *Parser) ParseContent(content, domain string) *Rules {
	rules := &Rules{
		UserAgent: "*",
		FetchedAt: time.Now(),
	}

	currentAgent := "*"
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(value)

		switch directive {
		case "user-agent":
			currentAgent = value
		case "allow":
			if p.agentApplies(currentAgent) {
				rules.Allow = append(rules.Allow, value)
			}
		case "disallow":
			if p.agentApplies(currentAgent) {
				rules.Disallow = append(rules.Disallow, value)
			}
		case "crawl-delay":
			if !p.agentApplies(currentAgent) {
				continue
			}
			delay, err := strconv.ParseFloat(value, 64)
			if err != nil {
				p.logger.Warn("invalid crawl-delay value",
					zap.String("domain", domain),
					zap.String("value", value),
				)
				continue
			}
			rules.CrawlDelay = &delay
		}
	}
	return rules
}

func (p *Parser) agentApplies(agent string) bool {
	return agent == "*" || agent == p.cfg.BotToken
}

// IsAllowed decides whether the URL's path is permitted by the ruleset.
// Disallow patterns win over allow patterns, and a non-empty allow list
// means only listed paths (that are not disallowed) are permitted.
func (p *Parser) IsAllowed(rawURL string, rules *Rules) bool {
	if rules == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := parsed.Path

	for _, pattern := range rules.Disallow {
		if pathMatches(path, pattern) {
			p.logger.Debug("url disallowed by robots.txt",
				zap.String("url", rawURL),
				zap.String("pattern", pattern),
			)
			return false
		}
	}

	if len(rules.Allow) > 0 {
		for _, pattern := range rules.Allow {
			if pathMatches(path, pattern) {
				return true
			}
		}
		p.logger.Debug("url not explicitly allowed by robots.txt", zap.String("url", rawURL))
		return false
	}

	return true
}

// pathMatches checks one robots.txt pattern against a URL path.
// Wildcard patterns are treated as prefix-anchored regular expressions;
// plain patterns match exactly or as a prefix.
func pathMatches(path, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, "*") {
		var b strings.Builder
		b.WriteString("^")
		for i, part := range strings.Split(pattern, "*") {
			if i > 0 {
				b.WriteString(".*")
			}
			b.WriteString(regexp.QuoteMeta(part))
		}
		re, err := regexp.Compile(b.String())
		if err != nil {
			return false
		}
		return re.MatchString(path)
	}
	return path == pattern || strings.HasPrefix(path, pattern)
}

// CrawlDelay returns the parsed crawl-delay or the default politeness
// delay when the ruleset has none.
func (p *Parser) CrawlDelay(rules *Rules) float64 {
	if rules == nil || rules.CrawlDelay == nil {
		return DefaultCrawlDelay
	}
	return *rules.CrawlDelay
}

// NewManifest builds a fresh compliance manifest snapshot from the
// current ruleset, with counters zeroed.
func (p *Parser) NewManifest(domain string, rules *Rules) *Manifest {
	m := &Manifest{
		Domain:     domain,
		CrawlDelay: p.CrawlDelay(rules),
		StartTS:    time.Now().UTC(),
	}
	if rules != nil {
		m.AllowPaths = append([]string(nil), rules.Allow...)
		m.DisallowPaths = append([]string(nil), rules.Disallow...)
		m.RobotsETag = rules.ETag
		m.RobotsLastModified = rules.LastMod
	}
	if p.cfg.Dir != "" {
		m.RobotsPath = filepath.Join(p.cfg.Dir, domain+".txt")
	}
	return m
}

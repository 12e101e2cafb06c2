package robots

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// probePaths are representative product/review paths used to decide
// whether a domain is worth crawling at all.
var probePaths = []string{"/product/test", "/reviews/test", "/p/test"}

// Compliance orchestrates per-domain robots checks and owns the
// compliance manifests for the session. It is safe for concurrent use.
type Compliance struct {
	parser *Parser
	logger *zap.Logger

	mu        sync.Mutex
	manifests map[string]*Manifest
	rules     map[string]*Rules
	order     []string
}

// NewCompliance builds a Compliance manager around a Parser.
func NewCompliance(parser *Parser, logger *zap.Logger) *Compliance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compliance{
		parser:    parser,
		logger:    logger,
		manifests: make(map[string]*Manifest),
		rules:     make(map[string]*Rules),
	}
}

// CheckDomain fetches the domain's rules, records a fresh manifest, and
// probes representative product/review paths. The domain is considered
// crawlable iff at least one probe path is permitted. This is a
// heuristic signal, distinct from per-URL allowance.
func (c *Compliance) CheckDomain(ctx context.Context, domain string) (bool, *Manifest) {
	rules := c.parser.FetchRobots(ctx, domain)
	manifest := c.parser.NewManifest(domain, rules)

	allowed := 0
	for _, path := range probePaths {
		if c.parser.IsAllowed(fmt.Sprintf("https://%s%s", domain, path), rules) {
			allowed++
		}
	}
	isAllowed := allowed > 0

	c.mu.Lock()
	if _, exists := c.manifests[domain]; !exists {
		c.order = append(c.order, domain)
	}
	c.manifests[domain] = manifest
	// Keep the exact ruleset this decision was made against. The parser
	// never caches fallback rulesets, so per-URL checks must not go back
	// to its cache: a fail-closed fallback would silently degrade to
	// default-allow.
	c.rules[domain] = rules
	c.mu.Unlock()

	c.logger.Info("domain compliance check",
		zap.String("domain", domain),
		zap.Bool("is_allowed", isAllowed),
		zap.Float64("crawl_delay", manifest.CrawlDelay),
		zap.Int("allow_paths", len(manifest.AllowPaths)),
		zap.Int("disallow_paths", len(manifest.DisallowPaths)),
	)

	return isAllowed, manifest
}

// CheckURL decides whether a specific URL may be fetched, lazily running
// the domain check first if this domain has not been seen. The decision
// uses the ruleset the domain check recorded, so a fail-closed fallback
// denies here too.
func (c *Compliance) CheckURL(ctx context.Context, rawURL, domain string) bool {
	if !c.checked(domain) {
		c.CheckDomain(ctx, domain)
	}
	c.mu.Lock()
	rules := c.rules[domain]
	c.mu.Unlock()
	return c.parser.IsAllowed(rawURL, rules)
}

// CrawlDelay returns the manifest's crawl delay for a domain, lazily
// checking the domain if needed.
func (c *Compliance) CrawlDelay(ctx context.Context, domain string) float64 {
	if !c.checked(domain) {
		c.CheckDomain(ctx, domain)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.manifests[domain]; ok && m.CrawlDelay > 0 {
		return m.CrawlDelay
	}
	return DefaultCrawlDelay
}

// UpdateManifest applies a partial counter update to an existing
// manifest. Updates for unknown domains are ignored.
func (c *Compliance) UpdateManifest(domain string, update ManifestUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.manifests[domain]; ok {
		m.apply(update)
	}
}

// Manifests returns every manifest recorded so far, in the order the
// domains were first checked.
func (c *Compliance) Manifests() []*Manifest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Manifest, 0, len(c.order))
	for _, domain := range c.order {
		out = append(out, c.manifests[domain])
	}
	return out
}

func (c *Compliance) checked(domain string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.manifests[domain]
	return ok
}

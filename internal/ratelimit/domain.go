package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/beautelab/luxcrawl/internal/metrics"
)

// DomainLimiter enforces a fixed minimum inter-request interval per
// domain. It carries no adaptive feedback; the HTTP client uses it to
// keep plain fetches polite regardless of crawl-loop state.
type DomainLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	defaultRate rate.Limit
	burst       int
}

// DomainConfig holds static limiter configuration.
type DomainConfig struct {
	RPS   float64
	Burst int
}

// NewDomain creates a DomainLimiter.
func NewDomain(cfg DomainConfig) *DomainLimiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &DomainLimiter{
		limiters:    make(map[string]*rate.Limiter),
		defaultRate: r,
		burst:       burst,
	}
}

// Wait blocks until a token is available for the URL's domain,
// respecting the context.
func (l *DomainLimiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}

	l.mu.Lock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.burst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

// SetDomainRate overrides the rate for one domain, typically from a
// robots.txt crawl-delay.
func (l *DomainLimiter) SetDomainRate(domain string, rps float64) {
	if rps <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[domain]; ok {
		limiter.SetLimit(rate.Limit(rps))
		return
	}
	l.limiters[domain] = rate.NewLimiter(rate.Limit(rps), l.burst)
}

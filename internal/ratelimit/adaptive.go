// Package ratelimit implements request pacing for the crawl pipeline:
// a static per-domain limiter for the plain HTTP path and an adaptive
// single-stream limiter that throttles on HTTP feedback.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"

	"github.com/beautelab/luxcrawl/internal/metrics"
)

const (
	historySize    = 20
	errorThreshold = 3

	jitterMin = 0.25
	jitterMax = 1.0
)

// AdaptiveConfig bounds the adaptive limiter's rate.
type AdaptiveConfig struct {
	RPS    float64
	MinRPS float64
	MaxRPS float64
}

// AdaptiveRPS paces a single request stream and adjusts its rate from
// response feedback. Feedback must arrive in completion order, so one
// instance serves one stream; it is not meant to be shared across
// parallel workers without external synchronization.
type AdaptiveRPS struct {
	mu          sync.Mutex
	rps         float64
	minRPS      float64
	maxRPS      float64
	lastRequest time.Time
	history     []bool

	// injectable for tests
	now    func() time.Time
	sleep  func(time.Duration)
	jitter func() time.Duration
}

// NewAdaptive builds an AdaptiveRPS with the given bounds.
func NewAdaptive(cfg AdaptiveConfig) *AdaptiveRPS {
	if cfg.RPS <= 0 {
		cfg.RPS = 0.5
	}
	if cfg.MinRPS <= 0 {
		cfg.MinRPS = 0.1
	}
	if cfg.MaxRPS < cfg.MinRPS {
		cfg.MaxRPS = 1.0
	}
	return &AdaptiveRPS{
		rps:    cfg.RPS,
		minRPS: cfg.MinRPS,
		maxRPS: cfg.MaxRPS,
		now:    time.Now,
		sleep:  time.Sleep,
		jitter: func() time.Duration {
			s := jitterMin + rand.Float64()*(jitterMax-jitterMin)
			return time.Duration(s * float64(time.Second))
		},
	}
}

// SetTimingHooks overrides the limiter's clock, sleep, and jitter
// functions for deterministic tests. Nil arguments keep the current
// function.
func (a *AdaptiveRPS) SetTimingHooks(now func() time.Time, sleep func(time.Duration), jitter func() time.Duration) {
	if now != nil {
		a.now = now
	}
	if sleep != nil {
		a.sleep = sleep
	}
	if jitter != nil {
		a.jitter = jitter
	}
}

// Wait blocks until it is safe to issue the next request, adding random
// jitter to avoid synchronized bursts across concurrent crawlers. Once
// the sleep has started it runs to completion.
func (a *AdaptiveRPS) Wait() {
	a.mu.Lock()
	interval := time.Duration(float64(time.Second) / a.rps)
	elapsed := a.now().Sub(a.lastRequest)
	delay := interval - elapsed
	if delay < 0 {
		delay = 0
	}
	a.mu.Unlock()

	total := delay + a.jitter()
	a.sleep(total)
	metrics.ObserveRateLimitDelay("adaptive", total)

	a.mu.Lock()
	a.lastRequest = a.now()
	a.mu.Unlock()
}

// Feedback records the outcome of the most recent request. Responses
// 403, 429, and 503 count as errors; three errors in the rolling window
// halve the rate, while a full error-free window eases it up by 20%.
// The rate never leaves [MinRPS, MaxRPS].
func (a *AdaptiveRPS) Feedback(statusCode int) {
	isError := statusCode == 403 || statusCode == 429 || statusCode == 503

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history) == historySize {
		a.history = a.history[1:]
	}
	a.history = append(a.history, isError)

	errors := 0
	for _, e := range a.history {
		if e {
			errors++
		}
	}

	// The window resets after each adjustment so one burst of errors
	// produces one halving, not one per subsequent response.
	switch {
	case errors >= errorThreshold:
		a.rps = max(a.minRPS, a.rps/2)
		a.history = a.history[:0]
		metrics.ObserveRateAdjustment("down")
	case errors == 0 && len(a.history) == historySize:
		a.rps = min(a.maxRPS, a.rps*1.2)
		a.history = a.history[:0]
		metrics.ObserveRateAdjustment("up")
	}
}

// RPS returns the current rate.
func (a *AdaptiveRPS) RPS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rps
}

// Status is a point-in-time snapshot of the limiter state. RecentErrors
// and WindowRequests both describe the current feedback window, which
// empties after every rate adjustment.
type Status struct {
	CurrentRPS     float64 `json:"current_rps"`
	MinRPS         float64 `json:"min_rps"`
	MaxRPS         float64 `json:"max_rps"`
	RecentErrors   int     `json:"recent_errors"`
	WindowRequests int     `json:"window_requests"`
}

// GetStatus reports the current limiter state.
func (a *AdaptiveRPS) GetStatus() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	errors := 0
	for _, e := range a.history {
		if e {
			errors++
		}
	}
	return Status{
		CurrentRPS:     a.rps,
		MinRPS:         a.minRPS,
		MaxRPS:         a.maxRPS,
		RecentErrors:   errors,
		WindowRequests: len(a.history),
	}
}

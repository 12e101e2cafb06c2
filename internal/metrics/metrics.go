// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal         *prometheus.CounterVec
	crawlerBlockedTotal       *prometheus.CounterVec
	robotsFetchesTotal        *prometheus.CounterVec
	rateLimitDelaySeconds     *prometheus.HistogramVec
	rateLimitAdjustmentsTotal *prometheus.CounterVec
	integrityViolationsTotal  prometheus.Counter
	integrityRunsTotal        *prometheus.CounterVec
	qualityGateStatus         *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "luxcrawl_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBlockedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "luxcrawl_blocked_requests_total",
				Help: "Total number of requests blocked by robots.txt, labeled by site.",
			},
			[]string{"site"},
		)

		robotsFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "luxcrawl_robots_fetches_total",
				Help: "Total robots.txt fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "luxcrawl_rate_limit_delay_seconds",
				Help:    "Histogram of delays introduced by the rate limiter, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		rateLimitAdjustmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "luxcrawl_rate_limit_adjustments_total",
				Help: "Total adaptive rate adjustments, labeled by direction.",
			},
			[]string{"direction"},
		)

		integrityViolationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "luxcrawl_integrity_violations_total",
				Help: "Total integrity violations recorded across validation runs.",
			},
		)

		integrityRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "luxcrawl_integrity_runs_total",
				Help: "Total integrity check runs, labeled by status.",
			},
			[]string{"status"},
		)

		qualityGateStatus = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "luxcrawl_quality_gate_status",
				Help: "Latest quality gate result per check (1 pass, 0 fail, -1 error).",
			},
			[]string{"check"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage records a fetched page.
func ObservePage(site, status string) {
	Init()
	crawlerPagesTotal.WithLabelValues(site, status).Inc()
}

// ObserveBlocked records a request denied by robots.txt.
func ObserveBlocked(site string) {
	Init()
	crawlerBlockedTotal.WithLabelValues(site).Inc()
}

// ObserveRobotsFetch records a robots.txt fetch outcome ("ok", "fallback", "cache").
func ObserveRobotsFetch(site, outcome string) {
	Init()
	robotsFetchesTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveRateLimitDelay records a pacing delay.
func ObserveRateLimitDelay(site string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(d.Seconds())
}

// ObserveRateAdjustment records an adaptive throttle change ("down" or "up").
func ObserveRateAdjustment(direction string) {
	Init()
	rateLimitAdjustmentsTotal.WithLabelValues(direction).Inc()
}

// ObserveIntegrityRun records a completed validation run.
func ObserveIntegrityRun(status string, violations int) {
	Init()
	integrityRunsTotal.WithLabelValues(status).Inc()
	integrityViolationsTotal.Add(float64(violations))
}

// SetGateStatus publishes the latest result for a quality gate check.
func SetGateStatus(check string, status string) {
	Init()
	v := 0.0
	switch status {
	case "PASS":
		v = 1
	case "ERROR":
		v = -1
	}
	qualityGateStatus.WithLabelValues(check).Set(v)
}

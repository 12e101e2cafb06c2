// Package quality implements lightweight, continuously-runnable checks
// over the silver tables. Unlike the integrity checker it neither
// fingerprints for synthetic data nor samples for audit; it is a
// dashboard-style summary, not a publication gate.
package quality

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/beautelab/luxcrawl/internal/metrics"
)

// Statuses for an individual gate check.
const (
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusError = "ERROR"
)

// CheckResult is the outcome of one gate check.
type CheckResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// SiteLuxuryStats summarizes luxury-classification coverage per site.
type SiteLuxuryStats struct {
	Site           string  `json:"site"`
	TotalProducts  int     `json:"total_products"`
	LuxuryProducts int     `json:"luxury_products"`
	LuxuryRate     float64 `json:"luxury_rate"`
	AvgPrice       float64 `json:"avg_price"`
}

// SiteReviewStats summarizes review language mix and freshness per site.
type SiteReviewStats struct {
	Site         string  `json:"site"`
	TotalReviews int     `json:"total_reviews"`
	FrenchRatio  float64 `json:"fr_ratio"`
	MinDate      string  `json:"min_date"`
	MaxDate      string  `json:"max_date"`
	AvgRating    float64 `json:"avg_rating"`
}

// Results aggregates all gate checks for one run.
type Results struct {
	Provenance         CheckResult `json:"provenance"`
	LuxuryCoverage     CheckResult `json:"luxury_coverage"`
	RefillableEvidence CheckResult `json:"refillable_evidence"`
	ReviewQuality      CheckResult `json:"review_quality"`
	OverallStatus      string      `json:"overall_status"`
	CheckedAt          time.Time   `json:"checked_at"`
}

// Gates runs the quality checks against a silver database handle.
type Gates struct {
	db     *sql.DB
	logger *zap.Logger
}

// New builds a Gates monitor.
func New(db *sql.DB, logger *zap.Logger) *Gates {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gates{db: db, logger: logger}
}

// CheckProvenance verifies that every row carries the non-negotiable
// provenance fields, including the robots snapshot reference.
func (g *Gates) CheckProvenance(ctx context.Context) CheckResult {
	var productsMissing, reviewsMissing int
	err := g.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products
		 WHERE source_url IS NULL OR scrape_ts IS NULL OR robots_snapshot_id IS NULL`,
	).Scan(&productsMissing)
	if err == nil {
		err = g.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reviews
			 WHERE source_url IS NULL OR scrape_ts IS NULL OR robots_snapshot_id IS NULL`,
		).Scan(&reviewsMissing)
	}
	if err != nil {
		g.logger.Error("provenance gate errored", zap.Error(err))
		return CheckResult{Status: StatusError, Message: err.Error()}
	}

	result := CheckResult{
		Status: StatusPass,
		Details: map[string]any{
			"products_missing_provenance": productsMissing,
			"reviews_missing_provenance":  reviewsMissing,
		},
	}
	if productsMissing > 0 || reviewsMissing > 0 {
		result.Status = StatusFail
		g.logger.Error("missing provenance",
			zap.Int("products", productsMissing),
			zap.Int("reviews", reviewsMissing),
		)
	}
	return result
}

// CheckLuxuryCoverage reports the per-site luxury classification rates.
func (g *Gates) CheckLuxuryCoverage(ctx context.Context) CheckResult {
	rows, err := g.db.QueryContext(ctx,
		`SELECT site,
		        COUNT(*),
		        SUM(CASE WHEN is_luxury = TRUE THEN 1 ELSE 0 END),
		        AVG(CASE WHEN is_luxury = TRUE THEN 1.0 ELSE 0.0 END),
		        AVG(price_value)
		 FROM products
		 GROUP BY site
		 ORDER BY COUNT(*) DESC`)
	if err != nil {
		g.logger.Error("luxury coverage gate errored", zap.Error(err))
		return CheckResult{Status: StatusError, Message: err.Error()}
	}
	defer rows.Close()

	var stats []SiteLuxuryStats
	for rows.Next() {
		var (
			s        SiteLuxuryStats
			rate     sql.NullFloat64
			avgPrice sql.NullFloat64
		)
		if err := rows.Scan(&s.Site, &s.TotalProducts, &s.LuxuryProducts, &rate, &avgPrice); err != nil {
			return CheckResult{Status: StatusError, Message: err.Error()}
		}
		s.LuxuryRate = rate.Float64
		s.AvgPrice = avgPrice.Float64
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return CheckResult{Status: StatusError, Message: err.Error()}
	}

	result := CheckResult{
		Status:  StatusPass,
		Details: map[string]any{"luxury_stats": stats},
	}
	if len(stats) == 0 {
		result.Status = StatusFail
	}
	for _, s := range stats {
		g.logger.Info("luxury coverage",
			zap.String("site", s.Site),
			zap.Int("luxury", s.LuxuryProducts),
			zap.Int("total", s.TotalProducts),
		)
	}
	return result
}

// CheckRefillableEvidence verifies every refillable claim has evidence.
func (g *Gates) CheckRefillableEvidence(ctx context.Context) CheckResult {
	var invalid, total int
	err := g.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products
		 WHERE refillable_flag = TRUE
		 AND (refill_evidence IS NULL OR refill_evidence = '[]' OR refill_evidence = '')`,
	).Scan(&invalid)
	if err == nil {
		err = g.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM products WHERE refillable_flag = TRUE`).Scan(&total)
	}
	if err != nil {
		g.logger.Error("refillable gate errored", zap.Error(err))
		return CheckResult{Status: StatusError, Message: err.Error()}
	}

	result := CheckResult{
		Status: StatusPass,
		Details: map[string]any{
			"invalid_refillable": invalid,
			"total_refillable":   total,
		},
	}
	if invalid > 0 {
		result.Status = StatusFail
		g.logger.Error("refillable products missing evidence",
			zap.Int("invalid", invalid),
			zap.Int("total", total),
		)
	}
	return result
}

// CheckReviewQuality reports review language mix and freshness per site.
func (g *Gates) CheckReviewQuality(ctx context.Context) CheckResult {
	rows, err := g.db.QueryContext(ctx,
		`SELECT site,
		        COUNT(*),
		        AVG(CASE WHEN language = 'fr' THEN 1.0 ELSE 0.0 END),
		        MIN(review_date),
		        MAX(review_date),
		        AVG(rating)
		 FROM reviews
		 GROUP BY site
		 ORDER BY COUNT(*) DESC`)
	if err != nil {
		g.logger.Error("review quality gate errored", zap.Error(err))
		return CheckResult{Status: StatusError, Message: err.Error()}
	}
	defer rows.Close()

	var stats []SiteReviewStats
	for rows.Next() {
		var (
			s                SiteReviewStats
			frRatio          sql.NullFloat64
			minDate, maxDate sql.NullString
			avgRating        sql.NullFloat64
		)
		if err := rows.Scan(&s.Site, &s.TotalReviews, &frRatio, &minDate, &maxDate, &avgRating); err != nil {
			return CheckResult{Status: StatusError, Message: err.Error()}
		}
		s.FrenchRatio = frRatio.Float64
		s.MinDate = minDate.String
		s.MaxDate = maxDate.String
		s.AvgRating = avgRating.Float64
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return CheckResult{Status: StatusError, Message: err.Error()}
	}

	result := CheckResult{
		Status:  StatusPass,
		Details: map[string]any{"review_stats": stats},
	}
	if len(stats) == 0 {
		result.Status = StatusFail
	}
	return result
}

// RunAll executes every gate check and aggregates the overall status,
// which is PASS iff every sub-check passed.
func (g *Gates) RunAll(ctx context.Context) Results {
	g.logger.Info("running quality gate checks")

	results := Results{
		Provenance:         g.CheckProvenance(ctx),
		LuxuryCoverage:     g.CheckLuxuryCoverage(ctx),
		RefillableEvidence: g.CheckRefillableEvidence(ctx),
		ReviewQuality:      g.CheckReviewQuality(ctx),
		CheckedAt:          time.Now().UTC(),
	}

	results.OverallStatus = StatusPass
	for name, r := range map[string]CheckResult{
		"provenance":          results.Provenance,
		"luxury_coverage":     results.LuxuryCoverage,
		"refillable_evidence": results.RefillableEvidence,
		"review_quality":      results.ReviewQuality,
	} {
		metrics.SetGateStatus(name, r.Status)
		if r.Status != StatusPass {
			results.OverallStatus = StatusFail
		}
	}

	g.logger.Info("quality gates finished", zap.String("status", results.OverallStatus))
	return results
}

package integrity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/beautelab/luxcrawl/internal/brands"
	"github.com/beautelab/luxcrawl/internal/metrics"
	"github.com/beautelab/luxcrawl/internal/silver"
)

const auditSampleLimit = 20

var syntheticBrandPattern = regexp.MustCompile(`^Brand_[0-9]+$`)

// Checker runs the full battery of provenance and synthetic-data audits
// over a silver store. Every check runs unconditionally; a failure in
// one never stops the rest, so the report always reflects every failure
// class present. A Checker holds no per-run state and is safe for
// concurrent use.
type Checker struct {
	store  *silver.Store
	logger *zap.Logger
	now    func() time.Time
}

// audit is the state of one Run invocation. Each call builds its own
// audit so concurrent runs never share a violation accumulator.
type audit struct {
	store  *silver.Store
	logger *zap.Logger

	violations []string
}

// NewChecker builds a Checker over an opened silver store.
func NewChecker(store *silver.Store, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *audit) violate(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.violations = append(c.violations, msg)
	c.logger.Error("integrity violation", zap.String("violation", msg))
}

// Run executes every check, writes the report and audit sample into the
// store's artifact directory, and returns the report. Only a failure to
// write the report itself is returned as an error.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	c.logger.Info("starting integrity check")
	a := &audit{store: c.store, logger: c.logger}

	a.checkTableExistence(ctx)
	a.checkProvenanceGates(ctx)
	a.checkRefillableEvidence(ctx)
	a.checkRobotsProvenance(ctx)
	a.checkSyntheticIndicators(ctx)
	a.checkPriceSanity(ctx)
	a.checkFixtureContamination(ctx)

	sample := a.generateAuditSample(ctx)

	report := Report{
		Timestamp:       c.now(),
		TotalViolations: len(a.violations),
		Violations:      a.violations,
		AuditSampleSize: len(sample),
		Status:          StatusPass,
	}
	if len(a.violations) > 0 {
		report.Status = StatusFail
	}
	metrics.ObserveIntegrityRun(report.Status, report.TotalViolations)

	if err := a.writeReport(report); err != nil {
		return report, err
	}

	c.logger.Info("integrity check completed",
		zap.Int("violations", report.TotalViolations),
		zap.String("status", report.Status),
	)
	return report, nil
}

func (c *audit) checkTableExistence(ctx context.Context) {
	for _, table := range []string{silver.TableProducts, silver.TableReviews} {
		exists, err := c.store.TableExists(ctx, table)
		if err != nil {
			c.violate("Error checking table %s: %v", table, err)
			continue
		}
		if !exists {
			c.violate("Missing required silver table: %s", table)
		}
	}
}

func (c *audit) checkProvenanceGates(ctx context.Context) {
	for _, table := range []string{silver.TableProducts, silver.TableReviews} {
		var missing int
		query := fmt.Sprintf(
			`SELECT COUNT(*) FROM %s WHERE source_url IS NULL OR scrape_ts IS NULL`, table)
		if err := c.store.DB().QueryRowContext(ctx, query).Scan(&missing); err != nil {
			c.violate("Error checking %s provenance: %v", table, err)
			continue
		}
		if missing > 0 {
			c.violate("%s missing core provenance: %d rows", titleCase(table), missing)
		}
	}
}

func (c *audit) checkRefillableEvidence(ctx context.Context) {
	var invalid int
	err := c.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products
		 WHERE refillable_flag = TRUE
		 AND (refill_evidence IS NULL OR refill_evidence = '[]' OR refill_evidence = '')`,
	).Scan(&invalid)
	if err != nil {
		c.violate("Error checking refillable evidence: %v", err)
		return
	}
	if invalid > 0 {
		c.violate("Refillable products without evidence: %d rows", invalid)
	}
}

func (c *audit) checkRobotsProvenance(ctx context.Context) {
	exists, err := c.store.TableExists(ctx, silver.TableManifestRuns)
	if err != nil {
		c.violate("Error checking robots provenance: %v", err)
		return
	}
	if !exists {
		c.violate("Missing required silver table: %s", silver.TableManifestRuns)
		return
	}

	rows, err := c.store.DB().QueryContext(ctx,
		`SELECT site, COUNT(*) FROM manifest_runs
		 WHERE robots_etag IS NULL OR robots_path IS NULL
		 GROUP BY site`)
	if err != nil {
		c.violate("Error checking robots provenance: %v", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var (
			site string
			n    int
		)
		if err := rows.Scan(&site, &n); err != nil {
			c.violate("Error checking robots provenance: %v", err)
			return
		}
		c.violate("Site %s missing robots provenance: %d records", site, n)
	}
	if err := rows.Err(); err != nil {
		c.violate("Error checking robots provenance: %v", err)
	}
}

func (c *audit) checkSyntheticIndicators(ctx context.Context) {
	c.checkBrandFingerprints(ctx)
	c.checkPriceGapUniformity(ctx)
	c.checkReviewDuplication(ctx)
	c.checkManifestPlausibility(ctx)
	c.checkRatingBounds(ctx)
}

// checkBrandFingerprints covers both brand smell-tests in one pass:
// generator-pattern names and zero overlap with known luxury houses.
func (c *audit) checkBrandFingerprints(ctx context.Context) {
	rows, err := c.store.DB().QueryContext(ctx,
		`SELECT brand, COUNT(*) FROM products WHERE brand IS NOT NULL GROUP BY brand`)
	if err != nil {
		c.violate("Brand pattern check failed: %v", err)
		return
	}
	defer rows.Close()

	var (
		syntheticRows int
		luxuryRows    int
		totalRows     int
	)
	for rows.Next() {
		var (
			brand string
			n     int
		)
		if err := rows.Scan(&brand, &n); err != nil {
			c.violate("Brand pattern check failed: %v", err)
			return
		}
		totalRows += n
		if syntheticBrandPattern.MatchString(brand) {
			syntheticRows += n
		}
		if brands.IsLuxuryHouse(brand) {
			luxuryRows += n
		}
	}
	if err := rows.Err(); err != nil {
		c.violate("Brand pattern check failed: %v", err)
		return
	}

	if syntheticRows > 0 {
		c.violate("Found %d synthetic brand names (Brand_0 pattern)", syntheticRows)
	}
	if totalRows > 0 && luxuryRows == 0 {
		c.violate("No luxury brands found - data appears synthetic")
	}
}

func (c *audit) checkPriceGapUniformity(ctx context.Context) {
	rows, err := c.store.DB().QueryContext(ctx,
		`SELECT DISTINCT price_value FROM products WHERE price_value IS NOT NULL ORDER BY price_value`)
	if err != nil {
		c.violate("Price gap check failed: %v", err)
		return
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			c.violate("Price gap check failed: %v", err)
			return
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		c.violate("Price gap check failed: %v", err)
		return
	}
	if len(prices) < 2 {
		return
	}

	gaps := make(map[float64]struct{})
	for i := 1; i < len(prices); i++ {
		gap := math.Round((prices[i]-prices[i-1])*100) / 100
		gaps[gap] = struct{}{}
	}
	if len(gaps) <= 1 {
		c.violate("Price gaps too uniform: only %d distinct gaps", len(gaps))
	}
}

func (c *audit) checkReviewDuplication(ctx context.Context) {
	var totalReviews int
	if err := c.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviews`).Scan(&totalReviews); err != nil {
		c.violate("Review duplication check failed: %v", err)
		return
	}
	if totalReviews == 0 {
		return
	}

	rows, err := c.store.DB().QueryContext(ctx,
		`SELECT COUNT(*) FROM reviews GROUP BY rating, body HAVING COUNT(*) > 1`)
	if err != nil {
		c.violate("Review duplication check failed: %v", err)
		return
	}
	defer rows.Close()

	var (
		totalDuplicates int
		duplicateGroups int
	)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			c.violate("Review duplication check failed: %v", err)
			return
		}
		totalDuplicates += n
		duplicateGroups++
	}
	if err := rows.Err(); err != nil {
		c.violate("Review duplication check failed: %v", err)
		return
	}

	pct := float64(totalDuplicates) / float64(totalReviews) * 100
	if pct > 10 {
		c.violate("High review duplication: %.1f%% (%d duplicate groups)", pct, duplicateGroups)
	}
}

func (c *audit) checkManifestPlausibility(ctx context.Context) {
	var productCount int
	if err := c.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products`).Scan(&productCount); err != nil {
		c.violate("Manifest check failed: %v", err)
		return
	}

	rows, err := c.store.DB().QueryContext(ctx,
		`SELECT site, total_requests FROM manifest_runs`)
	if err != nil {
		c.violate("Manifest check failed: %v", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var (
			site          string
			totalRequests int
		)
		if err := rows.Scan(&site, &totalRequests); err != nil {
			c.violate("Manifest check failed: %v", err)
			return
		}
		// A genuine crawl needs discovery plus detail fetches, so
		// request volume below 2x the product count is implausible.
		if totalRequests < productCount*2 {
			c.violate("Manifest implausible: %d requests for %d products", totalRequests, productCount)
		}
	}
	if err := rows.Err(); err != nil {
		c.violate("Manifest check failed: %v", err)
	}
}

func (c *audit) checkRatingBounds(ctx context.Context) {
	var (
		inBounds sql.NullFloat64
		total    int
	)
	err := c.store.DB().QueryRowContext(ctx,
		`SELECT AVG(CASE WHEN rating BETWEEN 1 AND 5 THEN 1.0 ELSE 0.0 END), COUNT(*)
		 FROM reviews`).Scan(&inBounds, &total)
	if err != nil {
		c.violate("Error checking rating bounds: %v", err)
		return
	}
	if total == 0 || !inBounds.Valid {
		return
	}
	fraction := math.Round(inBounds.Float64*1000) / 1000
	if fraction != 1.0 {
		c.violate("Invalid ratings found: %.3f in bounds", fraction)
	}
}

func (c *audit) checkPriceSanity(ctx context.Context) {
	rows, err := c.store.DB().QueryContext(ctx,
		`SELECT brand, COUNT(*), MIN(price_value), MAX(price_value), COUNT(DISTINCT price_value)
		 FROM products
		 WHERE price_value IS NOT NULL
		 GROUP BY brand
		 HAVING COUNT(*) >= 10
		 ORDER BY COUNT(DISTINCT price_value) ASC, COUNT(*) DESC`)
	if err != nil {
		c.violate("Error checking price sanity: %v", err)
		return
	}
	defer rows.Close()

	checked := 0
	for rows.Next() {
		var (
			brand       string
			n           int
			pmin, pmax  float64
			priceLevels int
		)
		if err := rows.Scan(&brand, &n, &pmin, &pmax, &priceLevels); err != nil {
			c.violate("Error checking price sanity: %v", err)
			return
		}
		checked++
		if priceLevels <= 2 {
			c.violate("Brand %s has suspiciously few price levels: %d for %d products", brand, priceLevels, n)
		}
		if pmin == pmax {
			c.violate("Brand %s has identical min/max prices: %v", brand, pmin)
		}
	}
	if err := rows.Err(); err != nil {
		c.violate("Error checking price sanity: %v", err)
		return
	}
	c.logger.Info("price sanity check completed", zap.Int("brands", checked))
}

func (c *audit) checkFixtureContamination(ctx context.Context) {
	for _, table := range []string{silver.TableProducts, silver.TableReviews} {
		hasColumn, err := c.store.HasColumn(ctx, table, "is_fixture")
		if err != nil {
			c.violate("Error checking fixture contamination in %s: %v", table, err)
			continue
		}
		if !hasColumn {
			// Tables written before the fixture flag existed are clean
			// by definition.
			c.logger.Info("no is_fixture column", zap.String("table", table))
			continue
		}
		var n int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_fixture = TRUE`, table)
		if err := c.store.DB().QueryRowContext(ctx, query).Scan(&n); err != nil {
			c.violate("Error checking fixture contamination in %s: %v", table, err)
			continue
		}
		if n > 0 {
			c.violate("Fixture contamination in %s: %d rows", table, n)
		}
	}
}

func (c *audit) generateAuditSample(ctx context.Context) []AuditRow {
	rows, err := c.store.DB().QueryContext(ctx, fmt.Sprintf(
		`SELECT product_id, brand, name, price_value, source_url, scrape_ts
		 FROM products
		 WHERE source_url IS NOT NULL AND scrape_ts IS NOT NULL
		 ORDER BY RANDOM()
		 LIMIT %d`, auditSampleLimit))
	if err != nil {
		c.violate("Error generating audit sample: %v", err)
		return nil
	}
	defer rows.Close()

	var sample []AuditRow
	for rows.Next() {
		var (
			row   AuditRow
			price sql.NullFloat64
		)
		if err := rows.Scan(&row.ProductID, &row.Brand, &row.Name, &price, &row.SourceURL, &row.ScrapeTS); err != nil {
			c.violate("Error generating audit sample: %v", err)
			return nil
		}
		row.PriceValue = price.Float64
		sample = append(sample, row)
	}
	if err := rows.Err(); err != nil {
		c.violate("Error generating audit sample: %v", err)
		return nil
	}

	if dir := c.store.Dir(); dir != "" {
		data, err := json.MarshalIndent(sample, "", "  ")
		if err != nil {
			c.violate("Error generating audit sample: %v", err)
			return sample
		}
		path := filepath.Join(dir, "audit_sample.json")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			c.violate("Error generating audit sample: %v", err)
			return sample
		}
		c.logger.Info("audit sample saved", zap.String("path", path), zap.Int("size", len(sample)))
	}
	return sample
}

func (c *audit) writeReport(report Report) error {
	dir := c.store.Dir()
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal integrity report: %w", err)
	}
	path := filepath.Join(dir, "integrity_report.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write integrity report: %w", err)
	}
	c.logger.Info("integrity report saved", zap.String("path", path))
	return nil
}

func titleCase(table string) string {
	if table == "" {
		return table
	}
	return string(table[0]-'a'+'A') + table[1:]
}

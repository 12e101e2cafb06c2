package integrity_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/beautelab/luxcrawl/internal/integrity"
	"github.com/beautelab/luxcrawl/internal/silver"
)

func newTestStore(t *testing.T) (*silver.Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Each sqlite :memory: connection is a separate database, so keep
	// the pool on one connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store := silver.NewWithDB(db, "sqlite", t.TempDir())
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store, db
}

func insertProduct(t *testing.T, db *sql.DB, id, brand string, price any, sourceURL any, opts map[string]any) {
	t.Helper()
	row := map[string]any{
		"product_id":         id,
		"site":               "beautysite.example",
		"brand":              brand,
		"name":               "Eau de Parfum " + id,
		"price_value":        price,
		"price_currency":     "EUR",
		"is_luxury":          true,
		"refillable_flag":    false,
		"refill_evidence":    "[]",
		"language":           "fr",
		"source_url":         sourceURL,
		"scrape_ts":          time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		"robots_snapshot_id": "snap-1",
		"is_fixture":         false,
	}
	for k, v := range opts {
		row[k] = v
	}
	_, err := db.Exec(`INSERT INTO products (
		product_id, site, brand, name, price_value, price_currency,
		is_luxury, refillable_flag, refill_evidence, language,
		source_url, scrape_ts, robots_snapshot_id, is_fixture
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row["product_id"], row["site"], row["brand"], row["name"],
		row["price_value"], row["price_currency"], row["is_luxury"],
		row["refillable_flag"], row["refill_evidence"], row["language"],
		row["source_url"], row["scrape_ts"], row["robots_snapshot_id"],
		row["is_fixture"],
	)
	require.NoError(t, err)
}

func insertReview(t *testing.T, db *sql.DB, id, productID string, rating float64, body string, opts map[string]any) {
	t.Helper()
	row := map[string]any{
		"review_id":          id,
		"product_id":         productID,
		"site":               "beautysite.example",
		"rating":             rating,
		"title":              "Avis " + id,
		"body":               body,
		"language":           "fr",
		"review_date":        "2026-07-15",
		"source_url":         "https://beautysite.example/reviews/" + id,
		"scrape_ts":          time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		"robots_snapshot_id": "snap-1",
		"is_fixture":         false,
	}
	for k, v := range opts {
		row[k] = v
	}
	_, err := db.Exec(`INSERT INTO reviews (
		review_id, product_id, site, rating, title, body, language,
		review_date, source_url, scrape_ts, robots_snapshot_id, is_fixture
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		row["review_id"], row["product_id"], row["site"], row["rating"],
		row["title"], row["body"], row["language"], row["review_date"],
		row["source_url"], row["scrape_ts"], row["robots_snapshot_id"],
		row["is_fixture"],
	)
	require.NoError(t, err)
}

func insertManifestRun(t *testing.T, db *sql.DB, site string, totalRequests int, opts map[string]any) {
	t.Helper()
	row := map[string]any{
		"run_id":                "run-1",
		"site":                  site,
		"robots_etag":           `"v1"`,
		"robots_path":           "data/robots/" + site + ".txt",
		"total_requests":        totalRequests,
		"blocked_requests":      0,
		"rate_limit_violations": 0,
	}
	for k, v := range opts {
		row[k] = v
	}
	_, err := db.Exec(`INSERT INTO manifest_runs (
		run_id, site, robots_etag, robots_path, total_requests,
		blocked_requests, rate_limit_violations, start_ts, end_ts
	) VALUES (?,?,?,?,?,?,?,?,?)`,
		row["run_id"], row["site"], row["robots_etag"], row["robots_path"],
		row["total_requests"], row["blocked_requests"], row["rate_limit_violations"],
		time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
}

// seedCleanData inserts a dataset that passes every check.
func seedCleanData(t *testing.T, db *sql.DB) {
	t.Helper()
	insertProduct(t, db, "p1", "Chanel", 150.00, "https://beautysite.example/p/p1", nil)
	insertProduct(t, db, "p2", "Guerlain", 123.50, "https://beautysite.example/p/p2", map[string]any{
		"refillable_flag": true,
		"refill_evidence": `[{"quote":"recharge disponible"}]`,
	})
	insertProduct(t, db, "p3", "Le Labo", 99.90, "https://beautysite.example/p/p3", nil)
	insertReview(t, db, "r1", "p1", 5, "Un parfum intemporel.", nil)
	insertReview(t, db, "r2", "p2", 4, "Tenue remarquable toute la journée.", nil)
	insertManifestRun(t, db, "beautysite.example", 20, nil)
}

func runChecker(t *testing.T, store *silver.Store) integrity.Report {
	t.Helper()
	report, err := integrity.NewChecker(store, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestCleanDataPasses(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusPass, report.Status, "violations: %v", report.Violations)
	assert.Zero(t, report.TotalViolations)
	assert.Equal(t, 3, report.AuditSampleSize)
}

func TestReportAndAuditSampleWritten(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)

	report := runChecker(t, store)

	data, err := os.ReadFile(filepath.Join(store.Dir(), "integrity_report.json"))
	require.NoError(t, err)
	var onDisk integrity.Report
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, report.Status, onDisk.Status)
	assert.Equal(t, report.TotalViolations, onDisk.TotalViolations)

	sampleData, err := os.ReadFile(filepath.Join(store.Dir(), "audit_sample.json"))
	require.NoError(t, err)
	var sample []integrity.AuditRow
	require.NoError(t, json.Unmarshal(sampleData, &sample))
	assert.Len(t, sample, 3)
	for _, row := range sample {
		assert.NotEmpty(t, row.SourceURL)
		assert.False(t, row.ScrapeTS.IsZero())
	}
}

func TestMissingProvenanceFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)
	insertProduct(t, db, "p4", "Chanel", 88.00, nil, nil)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Products missing core provenance: 1 rows")
}

func TestRefillableWithoutEvidenceFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)
	insertProduct(t, db, "p4", "Chanel", 88.00, "https://beautysite.example/p/p4", map[string]any{
		"refillable_flag": true,
		"refill_evidence": "[]",
	})
	insertProduct(t, db, "p5", "Guerlain", 77.70, "https://beautysite.example/p/p5", map[string]any{
		"refillable_flag": true,
		"refill_evidence": nil,
	})

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Refillable products without evidence: 2 rows")
}

func TestSyntheticBrandPatternFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)
	insertProduct(t, db, "p4", "Brand_0", 42.42, "https://beautysite.example/p/p4", nil)
	insertProduct(t, db, "p5", "Brand_17", 55.55, "https://beautysite.example/p/p5", nil)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Found 2 synthetic brand names (Brand_0 pattern)")
}

func TestNoLuxuryBrandsFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	insertProduct(t, db, "p1", "Generic Beauty Co", 10.00, "https://beautysite.example/p/p1", nil)
	insertProduct(t, db, "p2", "Drugstore Basics", 23.50, "https://beautysite.example/p/p2", nil)
	insertProduct(t, db, "p3", "Budget Glow", 51.30, "https://beautysite.example/p/p3", nil)
	insertManifestRun(t, db, "beautysite.example", 10, nil)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "No luxury brands found - data appears synthetic")
}

func TestUniformPriceGapsFail(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	for i, price := range []float64{10, 20, 30, 40} {
		insertProduct(t, db, fmt.Sprintf("p%d", i), "Chanel", price,
			fmt.Sprintf("https://beautysite.example/p/p%d", i), nil)
	}
	insertManifestRun(t, db, "beautysite.example", 20, nil)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Price gaps too uniform: only 1 distinct gaps")
}

func TestVariedPriceGapsPass(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	for i, price := range []float64{10, 23.5, 31, 58} {
		insertProduct(t, db, fmt.Sprintf("p%d", i), "Chanel", price,
			fmt.Sprintf("https://beautysite.example/p/p%d", i), nil)
	}
	insertManifestRun(t, db, "beautysite.example", 20, nil)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusPass, report.Status, "violations: %v", report.Violations)
}

func TestReviewDuplicationFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)
	for i := 0; i < 8; i++ {
		insertReview(t, db, fmt.Sprintf("dup%d", i), "p1", 5, "Incroyable, je recommande !", nil)
	}

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	// 8 duplicates out of 10 reviews, one duplicate group.
	assert.Contains(t, report.Violations, "High review duplication: 80.0% (1 duplicate groups)")
}

func TestImplausibleManifestFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	insertProduct(t, db, "p1", "Chanel", 150.00, "https://beautysite.example/p/p1", nil)
	insertProduct(t, db, "p2", "Guerlain", 123.50, "https://beautysite.example/p/p2", nil)
	insertProduct(t, db, "p3", "Le Labo", 99.90, "https://beautysite.example/p/p3", nil)
	insertManifestRun(t, db, "beautysite.example", 4, nil)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Manifest implausible: 4 requests for 3 products")
}

func TestMissingRobotsProvenanceFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)
	insertManifestRun(t, db, "other.example", 50, map[string]any{
		"run_id":      "run-2",
		"robots_etag": nil,
	})

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Site other.example missing robots provenance: 1 records")
}

func TestOutOfBoundsRatingFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)
	insertReview(t, db, "r3", "p1", 6, "Note impossible.", nil)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	require.NotEmpty(t, report.Violations)
	assert.Contains(t, report.Violations, "Invalid ratings found: 0.667 in bounds")
}

func TestFixtureContaminationFails(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)
	insertProduct(t, db, "p4", "Chanel", 60.60, "https://beautysite.example/p/p4", map[string]any{
		"is_fixture": true,
	})

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Fixture contamination in products: 1 rows")
}

func TestPriceSanityFlagsFlatBrands(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	for i := 0; i < 10; i++ {
		insertProduct(t, db, fmt.Sprintf("flat%d", i), "Chanel", 50.00,
			fmt.Sprintf("https://beautysite.example/p/flat%d", i), nil)
	}
	insertManifestRun(t, db, "beautysite.example", 100, nil)

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Brand Chanel has suspiciously few price levels: 1 for 10 products")
	assert.Contains(t, report.Violations, "Brand Chanel has identical min/max prices: 50")
}

func TestMissingTablesFail(t *testing.T) {
	t.Parallel()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Each sqlite :memory: connection is a separate database, so keep
	// the pool on one connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	store := silver.NewWithDB(db, "sqlite", t.TempDir())

	report := runChecker(t, store)
	assert.Equal(t, integrity.StatusFail, report.Status)
	assert.Contains(t, report.Violations, "Missing required silver table: products")
	assert.Contains(t, report.Violations, "Missing required silver table: reviews")
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)
	insertProduct(t, db, "p4", "Brand_0", 42.42, "https://beautysite.example/p/p4", nil)

	first := runChecker(t, store)
	second := runChecker(t, store)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Violations, second.Violations)
}

func TestRunSupportsConcurrentCallers(t *testing.T) {
	t.Parallel()
	store, db := newTestStore(t)
	seedCleanData(t, db)

	checker := integrity.NewChecker(store, zap.NewNop())

	const callers = 4
	reports := make([]integrity.Report, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = checker.Run(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, integrity.StatusPass, reports[i].Status)
		assert.Empty(t, reports[i].Violations)
	}
}

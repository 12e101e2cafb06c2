package quality_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/beautelab/luxcrawl/internal/quality"
	"github.com/beautelab/luxcrawl/internal/silver"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, silver.NewWithDB(db, "sqlite", "").EnsureSchema(context.Background()))
	return db
}

func seedProduct(t *testing.T, db *sql.DB, id string, isLuxury, refillable bool, evidence, sourceURL, snapshotID any) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO products (
		product_id, site, brand, name, price_value, price_currency,
		is_luxury, refillable_flag, refill_evidence, language,
		source_url, scrape_ts, robots_snapshot_id, is_fixture
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, "beautysite.example", "Chanel", "Produit "+id, 120.0, "EUR",
		isLuxury, refillable, evidence, "fr",
		sourceURL, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), snapshotID, false,
	)
	require.NoError(t, err)
}

func seedReview(t *testing.T, db *sql.DB, id, language string, rating float64, snapshotID any) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO reviews (
		review_id, product_id, site, rating, title, body, language,
		review_date, source_url, scrape_ts, robots_snapshot_id, is_fixture
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, "p1", "beautysite.example", rating, "Avis", "Texte "+id, language,
		"2026-07-15", "https://beautysite.example/r/"+id,
		time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), snapshotID, false,
	)
	require.NoError(t, err)
}

func TestRunAllPassesOnHealthyData(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	seedProduct(t, db, "p1", true, false, "[]", "https://beautysite.example/p/p1", "snap-1")
	seedProduct(t, db, "p2", false, true, `[{"quote":"recharge"}]`, "https://beautysite.example/p/p2", "snap-1")
	seedReview(t, db, "r1", "fr", 5, "snap-1")
	seedReview(t, db, "r2", "en", 4, "snap-1")

	results := quality.New(db, zap.NewNop()).RunAll(context.Background())
	assert.Equal(t, quality.StatusPass, results.OverallStatus)
	assert.Equal(t, quality.StatusPass, results.Provenance.Status)
	assert.Equal(t, quality.StatusPass, results.LuxuryCoverage.Status)
	assert.Equal(t, quality.StatusPass, results.RefillableEvidence.Status)
	assert.Equal(t, quality.StatusPass, results.ReviewQuality.Status)
	assert.False(t, results.CheckedAt.IsZero())
}

func TestProvenanceGateCountsMissingSnapshot(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	seedProduct(t, db, "p1", true, false, "[]", "https://beautysite.example/p/p1", nil)
	seedReview(t, db, "r1", "fr", 5, "snap-1")

	g := quality.New(db, zap.NewNop())
	result := g.CheckProvenance(context.Background())
	assert.Equal(t, quality.StatusFail, result.Status)
	assert.Equal(t, 1, result.Details["products_missing_provenance"])
	assert.Equal(t, 0, result.Details["reviews_missing_provenance"])
}

func TestLuxuryCoverageGate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	g := quality.New(db, zap.NewNop())
	// Empty tables mean no coverage at all.
	assert.Equal(t, quality.StatusFail, g.CheckLuxuryCoverage(context.Background()).Status)

	seedProduct(t, db, "p1", true, false, "[]", "https://beautysite.example/p/p1", "snap-1")
	seedProduct(t, db, "p2", false, false, "[]", "https://beautysite.example/p/p2", "snap-1")

	result := g.CheckLuxuryCoverage(context.Background())
	assert.Equal(t, quality.StatusPass, result.Status)
	stats, ok := result.Details["luxury_stats"].([]quality.SiteLuxuryStats)
	require.True(t, ok)
	require.Len(t, stats, 1)
	assert.Equal(t, "beautysite.example", stats[0].Site)
	assert.Equal(t, 2, stats[0].TotalProducts)
	assert.Equal(t, 1, stats[0].LuxuryProducts)
	assert.InDelta(t, 0.5, stats[0].LuxuryRate, 1e-9)
}

func TestRefillableEvidenceGate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	seedProduct(t, db, "p1", true, true, `[{"quote":"recharge"}]`, "https://beautysite.example/p/p1", "snap-1")
	seedProduct(t, db, "p2", true, true, "[]", "https://beautysite.example/p/p2", "snap-1")
	seedProduct(t, db, "p3", true, true, nil, "https://beautysite.example/p/p3", "snap-1")

	result := quality.New(db, zap.NewNop()).CheckRefillableEvidence(context.Background())
	assert.Equal(t, quality.StatusFail, result.Status)
	assert.Equal(t, 2, result.Details["invalid_refillable"])
	assert.Equal(t, 3, result.Details["total_refillable"])
}

func TestReviewQualityGate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	g := quality.New(db, zap.NewNop())
	assert.Equal(t, quality.StatusFail, g.CheckReviewQuality(context.Background()).Status)

	seedReview(t, db, "r1", "fr", 5, "snap-1")
	seedReview(t, db, "r2", "fr", 4, "snap-1")
	seedReview(t, db, "r3", "en", 3, "snap-1")

	result := g.CheckReviewQuality(context.Background())
	assert.Equal(t, quality.StatusPass, result.Status)
	stats, ok := result.Details["review_stats"].([]quality.SiteReviewStats)
	require.True(t, ok)
	require.Len(t, stats, 1)
	assert.Equal(t, 3, stats[0].TotalReviews)
	assert.InDelta(t, 2.0/3.0, stats[0].FrenchRatio, 1e-9)
	assert.InDelta(t, 4.0, stats[0].AvgRating, 1e-9)
	assert.Equal(t, "2026-07-15", stats[0].MinDate)
}

func TestRunAllFailsWhenAnyGateFails(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	seedProduct(t, db, "p1", true, true, "", "https://beautysite.example/p/p1", "snap-1")
	seedReview(t, db, "r1", "fr", 5, "snap-1")

	results := quality.New(db, zap.NewNop()).RunAll(context.Background())
	assert.Equal(t, quality.StatusFail, results.OverallStatus)
	assert.Equal(t, quality.StatusFail, results.RefillableEvidence.Status)
	assert.Equal(t, quality.StatusPass, results.Provenance.Status)
}

func TestGatesErrorOnMissingTables(t *testing.T) {
	t.Parallel()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	results := quality.New(db, zap.NewNop()).RunAll(context.Background())
	assert.Equal(t, quality.StatusFail, results.OverallStatus)
	assert.Equal(t, quality.StatusError, results.Provenance.Status)
}

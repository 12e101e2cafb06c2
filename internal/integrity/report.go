// Package integrity audits the silver-layer tables for provenance
// completeness and synthetic-data fingerprints. It is read-only apart
// from the report and audit-sample artifacts, and its FAIL status gates
// downstream publication of the dataset.
package integrity

import "time"

// Statuses for an audit run.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Report is the artifact of one validation run.
type Report struct {
	Timestamp       time.Time `json:"timestamp"`
	TotalViolations int       `json:"total_violations"`
	Violations      []string  `json:"violations"`
	AuditSampleSize int       `json:"audit_sample_size"`
	Status          string    `json:"status"`
}

// AuditRow is one fully-provenanced product row persisted verbatim for
// manual spot-checking.
type AuditRow struct {
	ProductID  string    `json:"product_id"`
	Brand      string    `json:"brand"`
	Name       string    `json:"name"`
	PriceValue float64   `json:"price_value"`
	SourceURL  string    `json:"source_url"`
	ScrapeTS   time.Time `json:"scrape_ts"`
}

// Package crawler implements the compliance-gated crawl loop and the
// contracts between its collaborators.
package crawler

import (
	"context"
	"net/http"
	"time"

	"github.com/beautelab/luxcrawl/internal/robots"
)

// FetchRequest describes one page fetch.
type FetchRequest struct {
	URL     string
	Site    string
	Headers http.Header
}

// FetchResponse is the outcome of one page fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher executes a single HTTP GET.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// BlobStore persists raw page bodies in the bronze layer.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Publisher notifies downstream consumers of crawl events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// PageManifest records one fetch for auditability.
type PageManifest struct {
	URL           string    `json:"url"`
	Site          string    `json:"site"`
	ScrapeTS      time.Time `json:"scrape_ts"`
	StatusCode    int       `json:"status_code"`
	ContentLength int       `json:"content_length"`
	HTMLHash      string    `json:"html_hash"`
	RobotsAllowed bool      `json:"robots_allowed"`
	CrawlDelay    float64   `json:"crawl_delay"`
	UserAgent     string    `json:"user_agent"`
	BlobURI       string    `json:"blob_uri,omitempty"`
}

// RunManifest summarizes one crawl run for reproducibility.
type RunManifest struct {
	RunID           string             `json:"run_id"`
	StartTS         time.Time          `json:"start_ts"`
	EndTS           *time.Time         `json:"end_ts,omitempty"`
	Domains         []string           `json:"domains"`
	PagesFetched    int                `json:"pages_fetched"`
	BlockedRequests int                `json:"blocked_requests"`
	ErrorsCount     int                `json:"errors_count"`
	Compliance      []*robots.Manifest `json:"compliance_manifests"`
}

// ManifestStore persists page and run manifests.
type ManifestStore interface {
	SavePage(ctx context.Context, page PageManifest) error
	SaveRun(ctx context.Context, run RunManifest) error
}

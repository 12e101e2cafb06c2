// Package robots implements robots.txt fetching, parsing, and the
// per-domain compliance manifests that record what a crawl session did.
package robots

import "time"

// Rules is the parsed ruleset from one robots.txt fetch, scoped to the
// wildcard agent or the bot's own token.
type Rules struct {
	Allow      []string
	Disallow   []string
	CrawlDelay *float64
	UserAgent  string
	ETag       string
	LastMod    string
	FetchedAt  time.Time

	// Err is set when the ruleset is a fallback substituted after a
	// failed fetch rather than a parse of real robots.txt content.
	Err string
}

// Manifest is the per-domain compliance record for a crawl session.
// It is created on the first compliance check for a domain and then
// only updated, never deleted.
type Manifest struct {
	Domain              string     `json:"domain"`
	RobotsETag          string     `json:"robots_etag,omitempty"`
	RobotsLastModified  string     `json:"robots_last_modified,omitempty"`
	RobotsPath          string     `json:"robots_path,omitempty"`
	AllowPaths          []string   `json:"allow_paths"`
	DisallowPaths       []string   `json:"disallow_paths"`
	CrawlDelay          float64    `json:"crawl_delay"`
	StartTS             time.Time  `json:"start_ts"`
	EndTS               *time.Time `json:"end_ts,omitempty"`
	TotalRequests       int        `json:"total_requests"`
	BlockedRequests     int        `json:"blocked_requests"`
	RateLimitViolations int        `json:"rate_limit_violations"`
}

// ManifestUpdate is a typed partial update for the mutable counter
// fields of a Manifest. Nil fields are left untouched.
type ManifestUpdate struct {
	TotalRequests       *int
	BlockedRequests     *int
	RateLimitViolations *int
	EndTS               *time.Time
}

func (m *Manifest) apply(u ManifestUpdate) {
	if u.TotalRequests != nil {
		m.TotalRequests = *u.TotalRequests
	}
	if u.BlockedRequests != nil {
		m.BlockedRequests = *u.BlockedRequests
	}
	if u.RateLimitViolations != nil {
		m.RateLimitViolations = *u.RateLimitViolations
	}
	if u.EndTS != nil {
		m.EndTS = u.EndTS
	}
}

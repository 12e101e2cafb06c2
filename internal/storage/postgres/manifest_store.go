// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beautelab/luxcrawl/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ManifestStoreConfig controls the Postgres connection pool used for
// crawl manifests.
type ManifestStoreConfig struct {
	DSN             string
	PageTable       string
	RunTable        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ManifestStore writes page and run manifests into Postgres.
type ManifestStore struct {
	pool      execCloser
	pageTable string
	runTable  string
}

// NewManifestStore creates a Postgres-backed ManifestStore using the provided config.
func NewManifestStore(ctx context.Context, cfg ManifestStoreConfig) (*ManifestStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("manifest.dsn is required")
	}
	pageTable, runTable, err := resolveTables(cfg.PageTable, cfg.RunTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ManifestStore{
		pool:      pool,
		pageTable: pageTable,
		runTable:  runTable,
	}, nil
}

// NewManifestStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewManifestStoreWithPool(pool execCloser, pageTable, runTable string) (*ManifestStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	pt, rt, err := resolveTables(pageTable, runTable)
	if err != nil {
		return nil, err
	}
	return &ManifestStore{pool: pool, pageTable: pt, runTable: rt}, nil
}

func resolveTables(pageTable, runTable string) (string, string, error) {
	if pageTable == "" {
		pageTable = "page_manifests"
	}
	if runTable == "" {
		runTable = "run_manifests"
	}
	if !validTableName.MatchString(pageTable) {
		return "", "", fmt.Errorf("invalid table name %q", pageTable)
	}
	if !validTableName.MatchString(runTable) {
		return "", "", fmt.Errorf("invalid table name %q", runTable)
	}
	return pageTable, runTable, nil
}

// Close releases the underlying pool resources.
func (s *ManifestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SavePage inserts one page manifest row.
func (s *ManifestStore) SavePage(ctx context.Context, page crawler.PageManifest) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	if page.URL == "" {
		return fmt.Errorf("page url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	site,
	scrape_ts,
	status_code,
	content_length,
	html_hash,
	robots_allowed,
	crawl_delay,
	user_agent,
	blob_uri
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.pageTable)

	args := []any{
		page.URL,
		page.Site,
		page.ScrapeTS,
		page.StatusCode,
		page.ContentLength,
		page.HTMLHash,
		page.RobotsAllowed,
		page.CrawlDelay,
		page.UserAgent,
		page.BlobURI,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert page manifest: %w", err)
	}
	return nil
}

// SaveRun inserts one run manifest row. Per-domain compliance manifests
// are stored as a JSON column so the audit trail survives verbatim.
func (s *ManifestStore) SaveRun(ctx context.Context, run crawler.RunManifest) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	complianceJSON, err := json.Marshal(run.Compliance)
	if err != nil {
		return fmt.Errorf("marshal compliance manifests: %w", err)
	}
	domainsJSON, err := json.Marshal(run.Domains)
	if err != nil {
		return fmt.Errorf("marshal domains: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	start_ts,
	end_ts,
	domains,
	pages_fetched,
	blocked_requests,
	errors_count,
	compliance_manifests
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.runTable)

	args := []any{
		run.RunID,
		run.StartTS,
		run.EndTS,
		domainsJSON,
		run.PagesFetched,
		run.BlockedRequests,
		run.ErrorsCount,
		complianceJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run manifest: %w", err)
	}
	return nil
}

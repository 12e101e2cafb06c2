// Package silver provides access to the silver-layer analytical store:
// the cleaned, merged products/reviews/manifest tables the integrity
// checks and quality gates audit.
package silver

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver
)

// Required table names.
const (
	TableProducts     = "products"
	TableReviews      = "reviews"
	TableManifestRuns = "manifest_runs"
)

// Config selects the silver database backend.
type Config struct {
	// Driver is "sqlite" for local data-lake files or "pgx" for a
	// shared Postgres warehouse.
	Driver string
	// DSN is the database path (sqlite) or connection string (pgx).
	DSN string
	// Dir is where JSON artifacts (integrity report, audit sample)
	// are written next to the tables.
	Dir string
}

// Store wraps the silver database handle.
type Store struct {
	db     *sql.DB
	driver string
	dir    string
}

// Open connects to the silver database.
func Open(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	if driver != "sqlite" && driver != "pgx" {
		return nil, fmt.Errorf("unsupported silver driver %q", driver)
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open silver store: %w", err)
	}
	return &Store{db: db, driver: driver, dir: cfg.Dir}, nil
}

// NewWithDB wraps an existing handle (primarily for tests).
func NewWithDB(db *sql.DB, driver, dir string) *Store {
	return &Store{db: db, driver: driver, dir: dir}
}

// DB exposes the underlying handle for read-only audit queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close silver store: %w", err)
	}
	return nil
}

// TableExists reports whether a table is present in the store.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch s.driver {
	case "sqlite":
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	case "pgx":
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1`
	default:
		return false, fmt.Errorf("unsupported silver driver %q", s.driver)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

// HasColumn reports whether a column is present on a table, so callers
// can treat optional columns explicitly instead of probing with queries
// that are expected to fail.
func (s *Store) HasColumn(ctx context.Context, table, column string) (bool, error) {
	switch s.driver {
	case "sqlite":
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
		if err != nil {
			return false, fmt.Errorf("table info %s: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				cid     int
				name    string
				ctype   string
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
				return false, fmt.Errorf("scan table info: %w", err)
			}
			if name == column {
				return true, nil
			}
		}
		if err := rows.Err(); err != nil {
			return false, fmt.Errorf("iterate table info: %w", err)
		}
		return false, nil
	case "pgx":
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2`,
			table, column,
		).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("check column %s.%s: %w", table, column, err)
		}
		return n > 0, nil
	default:
		return false, fmt.Errorf("unsupported silver driver %q", s.driver)
	}
}

// EnsureSchema creates the silver tables when absent. The normalization
// step and tests use it; the audits never write to the tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			product_id TEXT PRIMARY KEY,
			site TEXT,
			brand TEXT,
			name TEXT,
			price_value REAL,
			price_currency TEXT,
			is_luxury BOOLEAN,
			refillable_flag BOOLEAN,
			refill_evidence TEXT,
			language TEXT,
			source_url TEXT,
			scrape_ts TIMESTAMP,
			robots_snapshot_id TEXT,
			is_fixture BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			review_id TEXT PRIMARY KEY,
			product_id TEXT,
			site TEXT,
			rating REAL,
			title TEXT,
			body TEXT,
			language TEXT,
			review_date DATE,
			source_url TEXT,
			scrape_ts TIMESTAMP,
			robots_snapshot_id TEXT,
			is_fixture BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS manifest_runs (
			run_id TEXT,
			site TEXT,
			robots_etag TEXT,
			robots_path TEXT,
			total_requests INTEGER,
			blocked_requests INTEGER,
			rate_limit_violations INTEGER,
			start_ts TIMESTAMP,
			end_ts TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure silver schema: %w", err)
		}
	}
	return nil
}

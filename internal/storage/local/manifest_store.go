package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beautelab/luxcrawl/internal/crawler"
)

// ManifestStore appends page manifests to a JSONL file and writes one
// JSON document per run. It is the development-mode counterpart of the
// Postgres manifest store.
type ManifestStore struct {
	mu  sync.Mutex
	dir string
}

// NewManifestStore creates a filesystem ManifestStore rooted at dir.
func NewManifestStore(dir string) (*ManifestStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("manifest directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	return &ManifestStore{dir: dir}, nil
}

// SavePage appends one page manifest line to page_manifests.jsonl.
func (s *ManifestStore) SavePage(_ context.Context, page crawler.PageManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(
		filepath.Join(s.dir, "page_manifests.jsonl"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0o600,
	)
	if err != nil {
		return fmt.Errorf("open page manifest log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(page); err != nil {
		return fmt.Errorf("append page manifest: %w", err)
	}
	return nil
}

// SaveRun writes the run manifest to run_<run_id>.json.
func (s *ManifestStore) SaveRun(_ context.Context, run crawler.RunManifest) error {
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run manifest: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("run_%s.json", run.RunID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write run manifest: %w", err)
	}
	return nil
}

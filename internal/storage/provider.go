// Package storage selects the blob store backing the bronze layer.
package storage

import (
	"context"
	"fmt"

	gcstorage "cloud.google.com/go/storage"

	"github.com/beautelab/luxcrawl/internal/config"
	"github.com/beautelab/luxcrawl/internal/crawler"
	"github.com/beautelab/luxcrawl/internal/storage/gcs"
	"github.com/beautelab/luxcrawl/internal/storage/local"
	"github.com/beautelab/luxcrawl/internal/storage/memory"
)

// NewBlobStore builds the blob store named by cfg.Backend.
func NewBlobStore(ctx context.Context, cfg config.StorageConfig) (crawler.BlobStore, error) {
	switch cfg.Backend {
	case "local", "":
		return local.New(local.Config{BaseDir: cfg.BaseDir})
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
	case "memory":
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

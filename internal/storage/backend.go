// Package storage persists asset blobs behind a small backend interface.
// Two implementations exist: a local filesystem tree for single-host
// deployments and an S3-compatible object store for everything else.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"loft/internal/config"
	"loft/internal/logging"
)

// Backend stores and retrieves asset payloads by key. Keys are
// slash-separated relative paths such as "assets/<id>/<filename>".
type Backend interface {
	// Put writes the payload and returns the public URL for the object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Open returns a reader for the object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns the public URL for an existing object.
	URL(key string) string
}

// New constructs the backend selected by the configuration.
func New(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	switch cfg.Storage.Backend {
	case "local", "":
		return NewLocal(cfg.Storage.LocalDir, cfg.Storage.BaseURL, logger)
	case "s3":
		return NewS3(cfg.Storage.S3, cfg.Storage.BaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// AssetKey builds the canonical object key for an asset payload.
func AssetKey(assetID, filename string) string {
	return path.Join("assets", assetID, filename)
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}

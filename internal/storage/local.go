package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"loft/internal/logging"
)

// Local stores blobs under a directory tree. URLs are formed by joining
// the configured base URL with the object key, which assumes the tree is
// served by the daemon or a fronting web server.
type Local struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

func NewLocal(root, baseURL string, logger *slog.Logger) (*Local, error) {
	if root == "" {
		return nil, errors.New("local storage directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Local{root: root, baseURL: baseURL, logger: logger}, nil
}

func (l *Local) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	// Write to a temp name then rename so readers never observe a
	// partially written object.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if size > 0 && written != size {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("object %s truncated: wrote %d of %d bytes", key, written, size)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("finalize object %s: %w", key, err)
	}

	l.logger.Debug("stored object",
		logging.String("key", key),
		logging.Int64("bytes", written))
	return l.URL(key), nil
}

func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(l.root, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(l.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *Local) URL(key string) string {
	if l.baseURL == "" {
		return "/" + key
	}
	return joinURL(l.baseURL, key)
}

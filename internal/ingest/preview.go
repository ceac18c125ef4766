package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"loft/internal/fileutil"
)

// Preview is a transient staged copy of the source shown to the UI
// while the pipeline runs. It exists only between leaving idle and
// entering a terminal state; using it after release is a caller defect
// and panics.
type Preview struct {
	path     string
	released atomic.Bool
}

// newPreview stages a copy of src under dir. A hardlink is tried first,
// falling back to a byte copy across filesystems.
func newPreview(src, dir string) (*Preview, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	dst, err := fileutil.UniquePath(filepath.Join(dir, filepath.Base(src)))
	if err != nil {
		return nil, err
	}
	if err := os.Link(src, dst); err != nil {
		if err := fileutil.CopyFile(src, dst); err != nil {
			return nil, fmt.Errorf("stage preview: %w", err)
		}
	}
	return &Preview{path: dst}, nil
}

// Path returns the staged file location.
func (p *Preview) Path() string {
	if p.released.Load() {
		panic("ingest: preview used after release")
	}
	return p.path
}

// Release revokes the reference and removes the staged file. Safe to
// call more than once.
func (p *Preview) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	os.Remove(p.path)
}

// Released reports whether the reference has been revoked.
func (p *Preview) Released() bool {
	return p == nil || p.released.Load()
}

package storage_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"loft/internal/logging"
	"loft/internal/storage"
)

func newLocal(t *testing.T) *storage.Local {
	t.Helper()
	backend, err := storage.NewLocal(t.TempDir(), "http://assets.example.com/media", logging.NewNop())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return backend
}

func TestLocalPutOpenDelete(t *testing.T) {
	backend := newLocal(t)
	key := storage.AssetKey("a1", "kitchen.jpg")
	payload := []byte("jpeg bytes")

	url, err := backend.Put(t.Context(), key, bytes.NewReader(payload), int64(len(payload)), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "http://assets.example.com/media/assets/a1/kitchen.jpg" {
		t.Fatalf("unexpected url %q", url)
	}

	exists, err := backend.Exists(t.Context(), key)
	if err != nil || !exists {
		t.Fatalf("Exists after put: %v %v", exists, err)
	}

	rc, err := backend.Open(t.Context(), key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: %q %v", got, err)
	}

	if err := backend.Delete(t.Context(), key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if exists, _ := backend.Exists(t.Context(), key); exists {
		t.Fatal("object still present after delete")
	}
	// Deleting a missing object is a no-op.
	if err := backend.Delete(t.Context(), key); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestLocalNilLoggerIsSafe(t *testing.T) {
	backend, err := storage.NewLocal(t.TempDir(), "", nil)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	payload := []byte("bytes")
	if _, err := backend.Put(t.Context(), "assets/a3/nil.jpg", bytes.NewReader(payload), int64(len(payload)), "image/jpeg"); err != nil {
		t.Fatalf("Put with nil logger: %v", err)
	}
}

func TestLocalPutSizeMismatch(t *testing.T) {
	backend := newLocal(t)
	_, err := backend.Put(t.Context(), "assets/a2/short.jpg", strings.NewReader("abc"), 10, "image/jpeg")
	if err == nil {
		t.Fatal("expected truncation error")
	}
	if exists, _ := backend.Exists(t.Context(), "assets/a2/short.jpg"); exists {
		t.Fatal("truncated object must not be finalized")
	}
}

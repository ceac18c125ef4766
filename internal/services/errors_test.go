package services_test

import (
	"errors"
	"strings"
	"testing"

	"loft/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransport, "uploading", "put chunk", "chunk 3", base)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
	if !strings.Contains(err.Error(), "uploading: put chunk: chunk 3") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected default transport marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", services.Wrap(services.ErrTransport, "uploading", "post", "", nil), true},
		{"too large", services.Wrap(services.ErrPayloadTooLarge, "uploading", "post", "", nil), false},
		{"cancelled", services.ErrCancelled, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsSoft(t *testing.T) {
	if !services.IsSoft(services.ErrIndeterminate) {
		t.Fatal("indeterminate should be soft")
	}
	if !services.IsSoft(services.Wrap(services.ErrCompression, "compressing", "pass", "", nil)) {
		t.Fatal("compression failure should be soft")
	}
	if services.IsSoft(services.ErrPayloadTooLarge) {
		t.Fatal("payload too large is hard")
	}
}

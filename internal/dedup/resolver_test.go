package dedup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"loft/internal/api"
	"loft/internal/asset"
	"loft/internal/dedup"
	"loft/internal/fingerprint"
)

type fakeChecker struct {
	resp  *api.DuplicateCheckResponse
	err   error
	delay time.Duration

	gotHash string
	gotName string
}

func (f *fakeChecker) CheckDuplicate(ctx context.Context, hash, name string) (*api.DuplicateCheckResponse, error) {
	f.gotHash, f.gotName = hash, name
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func TestResolveDigestMatch(t *testing.T) {
	checker := &fakeChecker{resp: &api.DuplicateCheckResponse{
		Exists:        true,
		Authoritative: true,
		Media:         &asset.Descriptor{ID: "a1"},
	}}
	r := dedup.New(checker, time.Second, nil)

	match := r.Resolve(t.Context(), fingerprint.Digest("abc"), "room.jpg")
	if !match.Found || !match.Authoritative || match.Media.ID != "a1" {
		t.Fatalf("unexpected match: %+v", match)
	}
	if checker.gotHash != "abc" || checker.gotName != "room.jpg" {
		t.Fatalf("unexpected query: %q %q", checker.gotHash, checker.gotName)
	}
}

func TestResolveFilenameOnlyMatch(t *testing.T) {
	checker := &fakeChecker{resp: &api.DuplicateCheckResponse{
		Exists: true,
		Media:  &asset.Descriptor{ID: "a2"},
	}}
	r := dedup.New(checker, time.Second, nil)

	match := r.Resolve(t.Context(), fingerprint.Indeterminate, "room.jpg")
	if !match.Found || match.Authoritative {
		t.Fatalf("filename match must not be authoritative: %+v", match)
	}
	if checker.gotHash != "" {
		t.Fatalf("indeterminate digest must not be sent: %q", checker.gotHash)
	}
}

func TestResolveDegradesOnError(t *testing.T) {
	r := dedup.New(&fakeChecker{err: errors.New("connection refused")}, time.Second, nil)
	if match := r.Resolve(t.Context(), fingerprint.Digest("abc"), "x.jpg"); match.Found {
		t.Fatalf("lookup failure should yield no-match: %+v", match)
	}
}

func TestResolveDegradesOnTimeout(t *testing.T) {
	checker := &fakeChecker{
		resp:  &api.DuplicateCheckResponse{Exists: true},
		delay: 500 * time.Millisecond,
	}
	r := dedup.New(checker, 20*time.Millisecond, nil)
	if match := r.Resolve(t.Context(), fingerprint.Digest("abc"), "x.jpg"); match.Found {
		t.Fatalf("timed out lookup should yield no-match: %+v", match)
	}
}

func TestResolveSkipsEmptyQuery(t *testing.T) {
	checker := &fakeChecker{resp: &api.DuplicateCheckResponse{Exists: true}}
	r := dedup.New(checker, time.Second, nil)
	if match := r.Resolve(t.Context(), fingerprint.Indeterminate, ""); match.Found {
		t.Fatal("no digest and no filename should skip the lookup")
	}
	if checker.gotHash != "" || checker.gotName != "" {
		t.Fatal("checker should not have been called")
	}
}

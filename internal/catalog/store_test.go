package catalog_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"loft/internal/asset"
	"loft/internal/catalog"
)

func openStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.OpenPath(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertAsset(t *testing.T, store *catalog.Store, rec catalog.NewAsset) *asset.Descriptor {
	t.Helper()
	if rec.URL == "" {
		rec.URL = "/media/test.jpg"
	}
	if rec.MediaType == "" {
		rec.MediaType = asset.MediaImage
	}
	if rec.OriginalFilename == "" {
		rec.OriginalFilename = "test.jpg"
	}
	desc, err := store.InsertAsset(t.Context(), rec)
	if err != nil {
		t.Fatalf("InsertAsset: %v", err)
	}
	return desc
}

func TestInsertAndGetAsset(t *testing.T) {
	store := openStore(t)
	desc := insertAsset(t, store, catalog.NewAsset{
		SizeBytes:   1234,
		Fingerprint: "abc123",
	})
	if desc.ID == "" {
		t.Fatal("expected generated id")
	}
	if desc.UsageCount != 0 {
		t.Fatalf("new asset should have zero usage, got %d", desc.UsageCount)
	}

	got, err := store.GetAsset(t.Context(), desc.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if got.Fingerprint != "abc123" || got.SizeBytes != 1234 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := store.GetAsset(t.Context(), "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertStampsCreatedAt(t *testing.T) {
	store := openStore(t)
	before := time.Now().Add(-time.Minute)
	desc := insertAsset(t, store, catalog.NewAsset{Fingerprint: "stamped"})
	if desc.CreatedAt.IsZero() || desc.CreatedAt.Before(before) {
		t.Fatalf("created_at not bound on insert: %v", desc.CreatedAt)
	}
}

func TestFingerprintCollisionReturnsExisting(t *testing.T) {
	store := openStore(t)
	first := insertAsset(t, store, catalog.NewAsset{Fingerprint: "dup-digest"})

	second, err := store.InsertAsset(t.Context(), catalog.NewAsset{
		URL:              "/media/other.jpg",
		MediaType:        asset.MediaImage,
		OriginalFilename: "other.jpg",
		Fingerprint:      "dup-digest",
	})
	if !errors.Is(err, catalog.ErrFingerprintExists) {
		t.Fatalf("expected ErrFingerprintExists, got %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("collision should return the existing asset: %+v", second)
	}

	count, err := store.CountAssets(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("collision must not create a second row, have %d", count)
	}
}

func TestFindByFingerprintAndFilename(t *testing.T) {
	store := openStore(t)
	insertAsset(t, store, catalog.NewAsset{
		OriginalFilename: "balcony.jpg",
		Fingerprint:      "fp-1",
	})

	byFp, err := store.FindByFingerprint(t.Context(), "fp-1")
	if err != nil || byFp == nil {
		t.Fatalf("FindByFingerprint: %v %v", byFp, err)
	}
	if miss, err := store.FindByFingerprint(t.Context(), "nope"); err != nil || miss != nil {
		t.Fatalf("expected nil for unknown digest: %v %v", miss, err)
	}

	byName, err := store.FindByFilename(t.Context(), "balcony.jpg")
	if err != nil || byName == nil {
		t.Fatalf("FindByFilename: %v %v", byName, err)
	}
	if miss, err := store.FindByFilename(t.Context(), "patio.jpg"); err != nil || miss != nil {
		t.Fatalf("expected nil for unknown filename: %v %v", miss, err)
	}
}

func TestUsageInvariantAcrossAttachDetach(t *testing.T) {
	store := openStore(t)
	desc := insertAsset(t, store, catalog.NewAsset{Fingerprint: "usage-fp"})

	locA := asset.UsageLocation{PropertyID: "p1", ZoneID: "z1", StepID: "s1"}
	locB := asset.UsageLocation{PropertyID: "p1", ZoneID: "z2", StepID: "s1"}

	after, err := store.Attach(t.Context(), desc.ID, locA)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if after.UsageCount != 1 {
		t.Fatalf("usage count after first attach: %d", after.UsageCount)
	}
	if after.LastUsedAt.IsZero() {
		t.Fatal("attach should stamp last_used_at")
	}

	// Idempotent: same tuple does not bump the count.
	after, err = store.Attach(t.Context(), desc.ID, locA)
	if err != nil {
		t.Fatalf("Attach repeat: %v", err)
	}
	if after.UsageCount != 1 {
		t.Fatalf("repeated attach must not double count: %d", after.UsageCount)
	}

	after, err = store.Attach(t.Context(), desc.ID, locB)
	if err != nil {
		t.Fatalf("Attach second location: %v", err)
	}
	if after.UsageCount != 2 {
		t.Fatalf("usage count after second attach: %d", after.UsageCount)
	}

	after, err = store.Detach(t.Context(), desc.ID, locA)
	if err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if after.UsageCount != 1 {
		t.Fatalf("usage count after detach: %d", after.UsageCount)
	}

	// Unknown tuple is a no-op.
	after, err = store.Detach(t.Context(), desc.ID, asset.UsageLocation{PropertyID: "px", ZoneID: "zx", StepID: "sx"})
	if err != nil {
		t.Fatalf("Detach unknown: %v", err)
	}
	if after.UsageCount != 1 {
		t.Fatalf("detach of unknown tuple changed count: %d", after.UsageCount)
	}

	broken, err := store.VerifyUsageInvariant(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(broken) != 0 {
		t.Fatalf("usage invariant violated for %v", broken)
	}

	usage, err := store.UsageLocations(t.Context(), desc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 || usage[0] != locB {
		t.Fatalf("unexpected usage list: %+v", usage)
	}
}

func TestAttachUnknownAsset(t *testing.T) {
	store := openStore(t)
	_, err := store.Attach(t.Context(), "ghost", asset.UsageLocation{PropertyID: "p", ZoneID: "z", StepID: "s"})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletionReport(t *testing.T) {
	store := openStore(t)
	used := insertAsset(t, store, catalog.NewAsset{Fingerprint: "used"})
	free := insertAsset(t, store, catalog.NewAsset{Fingerprint: "free"})
	if _, err := store.Attach(t.Context(), used.ID, asset.UsageLocation{PropertyID: "p", ZoneID: "z", StepID: "s"}); err != nil {
		t.Fatal(err)
	}

	entries, err := store.DeletionReport(t.Context(), []string{used.ID, free.ID, "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("unexpected entry count: %d", len(entries))
	}
	if !entries[0].Known || len(entries[0].Usage) != 1 {
		t.Fatalf("used asset entry wrong: %+v", entries[0])
	}
	if !entries[1].Known || len(entries[1].Usage) != 0 {
		t.Fatalf("free asset entry wrong: %+v", entries[1])
	}
	if entries[2].Known {
		t.Fatalf("ghost asset should be unknown: %+v", entries[2])
	}
}

func TestDeleteAssetCascadesUsage(t *testing.T) {
	store := openStore(t)
	desc := insertAsset(t, store, catalog.NewAsset{Fingerprint: "cascade"})
	if _, err := store.Attach(t.Context(), desc.ID, asset.UsageLocation{PropertyID: "p", ZoneID: "z", StepID: "s"}); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteAsset(t.Context(), desc.ID); err != nil {
		t.Fatal(err)
	}
	usage, err := store.UsageLocations(t.Context(), desc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 0 {
		t.Fatalf("usage records should cascade on delete: %+v", usage)
	}
	if err := store.DeleteAsset(t.Context(), desc.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("double delete should be ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := openStore(t)
	sess, err := store.CreateSession(t.Context(), "tour.mp4", "video/mp4", 10<<20, 4<<20, 3, false)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.TotalChunks != 3 || sess.Received() != 0 || sess.Complete() {
		t.Fatalf("unexpected new session: %+v", sess)
	}
	if sess.Force {
		t.Fatal("session should not be forced by default")
	}

	sess, err = store.MarkChunk(t.Context(), sess.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Received() != 1 || !sess.HasChunk(1) || sess.HasChunk(0) {
		t.Fatalf("unexpected after chunk 1: %+v", sess)
	}

	// Retried chunk is idempotent.
	sess, err = store.MarkChunk(t.Context(), sess.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Received() != 1 {
		t.Fatalf("retry double-counted: %d", sess.Received())
	}

	if _, err := store.MarkChunk(t.Context(), sess.ID, 7); err == nil {
		t.Fatal("out-of-range index should error")
	}

	for _, i := range []int{0, 2} {
		if sess, err = store.MarkChunk(t.Context(), sess.ID, i); err != nil {
			t.Fatal(err)
		}
	}
	if !sess.Complete() {
		t.Fatalf("session should be complete: %+v", sess)
	}

	if err := store.DeleteSession(t.Context(), sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetSession(t.Context(), sess.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSessionForcePersists(t *testing.T) {
	store := openStore(t)
	sess, err := store.CreateSession(t.Context(), "copy.mp4", "video/mp4", 8<<20, 4<<20, 2, true)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, err := store.GetSession(t.Context(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Force {
		t.Fatal("force flag lost on round trip")
	}
}

func TestExpiredSessions(t *testing.T) {
	store := openStore(t)
	sess, err := store.CreateSession(t.Context(), "a.mp4", "video/mp4", 8<<20, 4<<20, 2, false)
	if err != nil {
		t.Fatal(err)
	}

	ids, err := store.ExpiredSessions(t.Context(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("fresh session reported expired: %v", ids)
	}

	ids, err = store.ExpiredSessions(t.Context(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != sess.ID {
		t.Fatalf("expected expired session, got %v", ids)
	}
}

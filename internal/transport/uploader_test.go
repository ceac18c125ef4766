package transport_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"loft/internal/api"
	"loft/internal/apiclient"
	"loft/internal/asset"
	"loft/internal/config"
	"loft/internal/services"
	"loft/internal/testsupport"
	"loft/internal/transport"
)

func newUploader(t *testing.T, handler http.Handler, mutate func(*config.Config)) (*transport.Uploader, *config.Config) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithServerURL(ts.URL))
	if mutate != nil {
		mutate(cfg)
	}
	client := apiclient.New(ts.URL, "", nil)
	return transport.New(cfg, client, nil), cfg
}

func payloadFile(t *testing.T, name string, size int64) transport.Payload {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	testsupport.WriteFile(t, path, size)
	return transport.Payload{
		Path:        path,
		Filename:    name,
		ContentType: "image/jpeg",
		SizeBytes:   size,
	}
}

func TestUploadRejectsOversizedBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	up, cfg := newUploader(t, handler, nil)

	payload := payloadFile(t, "huge.jpg", 1024)
	payload.SizeBytes = cfg.MaxUploadBytes() + 1

	_, err := up.Upload(t.Context(), payload, nil)
	if !errors.Is(err, services.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("ceiling check must run before any request")
	}
}

func TestUploadDirectSmallTier(t *testing.T) {
	desc := asset.Descriptor{ID: "a1", URL: "/media/a.jpg"}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/assets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.UploadResponse{URL: desc.URL, Asset: &desc})
	})
	up, _ := newUploader(t, handler, nil)

	var progress []transport.Progress
	payload := payloadFile(t, "room.jpg", 100_000)
	outcome, err := up.Upload(t.Context(), payload, func(p transport.Progress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.DuplicateShortCircuit || outcome.Asset.ID != "a1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(progress) == 0 || progress[len(progress)-1].SentBytes != payload.SizeBytes {
		t.Fatalf("progress should reach the payload size: %+v", progress)
	}
	if progress[0].Tier != "direct" {
		t.Fatalf("small payload should use the direct tier: %+v", progress[0])
	}
}

func TestUploadDirectStreamsProgress(t *testing.T) {
	desc := asset.Descriptor{ID: "s1", URL: "/media/s.jpg"}
	var sent atomic.Int64
	var midstream atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Sample the client's progress counter with most of the body
		// still unread. A buffered body would already report it all sent.
		head := make([]byte, 1024)
		if _, err := io.ReadFull(r.Body, head); err != nil {
			t.Errorf("read body head: %v", err)
		}
		midstream.Store(sent.Load())
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.UploadResponse{URL: desc.URL, Asset: &desc})
	})
	up, _ := newUploader(t, handler, nil)

	payload := payloadFile(t, "wing.jpg", 3<<20)
	_, err := up.Upload(t.Context(), payload, func(p transport.Progress) {
		sent.Store(p.SentBytes)
	})
	if err != nil {
		t.Fatal(err)
	}
	if midstream.Load() >= payload.SizeBytes {
		t.Fatalf("progress hit %d of %d before the server read the body", midstream.Load(), payload.SizeBytes)
	}
}

func TestUploadDirectDuplicateShortCircuit(t *testing.T) {
	existing := asset.Descriptor{ID: "old", URL: "/media/old.jpg"}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.UploadResponse{
			URL: existing.URL, Duplicate: true, ExistingMedia: &existing,
		})
	})
	up, _ := newUploader(t, handler, nil)

	outcome, err := up.Upload(t.Context(), payloadFile(t, "dup.jpg", 1000), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.DuplicateShortCircuit || outcome.Asset.ID != "old" {
		t.Fatalf("409 should surface as a short circuit: %+v", outcome)
	}
}

func TestUploadDirect413(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: "too big", Code: api.CodePayloadTooLarge, SizeBytes: 5000, LimitBytes: 4000,
		})
	})
	up, _ := newUploader(t, handler, nil)

	_, err := up.Upload(t.Context(), payloadFile(t, "big.jpg", 1000), nil)
	if !errors.Is(err, services.ErrPayloadTooLarge) {
		t.Fatalf("server 413 must map to ErrPayloadTooLarge, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("413 must not be retryable")
	}
}

// chunkServer fakes the session endpoints with scriptable per-chunk
// failures.
type chunkServer struct {
	t           *testing.T
	chunkSize   int64
	totalChunks int
	failures    map[int]int // index -> remaining 500s

	received atomic.Int32
	final    api.UploadResponse
}

func (s *chunkServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/uploads", func(w http.ResponseWriter, r *http.Request) {
		var req api.ChunkStartRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.totalChunks = int((req.TotalSize + s.chunkSize - 1) / s.chunkSize)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.ChunkStartResponse{
			SessionID: "sess-1", ChunkSize: s.chunkSize, TotalChunks: s.totalChunks,
		})
	})
	mux.HandleFunc("PUT /v1/uploads/{id}/chunks/{index}", func(w http.ResponseWriter, r *http.Request) {
		index, _ := strconv.Atoi(r.PathValue("index"))
		if s.failures[index] > 0 {
			s.failures[index]--
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "transient", Code: api.CodeInternal})
			return
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			s.t.Errorf("chunk %d arrived empty", index)
		}
		n := int(s.received.Add(1))
		if n == s.totalChunks {
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(s.final)
			return
		}
		json.NewEncoder(w).Encode(api.ChunkAck{
			SessionID: "sess-1", Index: index, Received: n, Remaining: s.totalChunks - n,
		})
	})
	return mux
}

func TestUploadChunkedWithRetries(t *testing.T) {
	desc := asset.Descriptor{ID: "v1", URL: "/media/tour.mp4"}
	srv := &chunkServer{
		t:         t,
		chunkSize: 64 * 1024,
		failures:  map[int]int{1: 2},
		final:     api.UploadResponse{URL: desc.URL, Asset: &desc},
	}
	up, _ := newUploader(t, srv.handler(), func(cfg *config.Config) {
		cfg.Server.BodyLimitMiB = 0 // force the chunked tier
	})

	var progress []transport.Progress
	payload := payloadFile(t, "tour.mp4", 200*1024)
	payload.ContentType = "video/mp4"
	outcome, err := up.Upload(t.Context(), payload, func(p transport.Progress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Asset.ID != "v1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	last := progress[len(progress)-1]
	if last.Tier != "chunked" || last.SentBytes != payload.SizeBytes {
		t.Fatalf("progress should finish the payload: %+v", last)
	}
}

func TestUploadChunkedGivesUpAfterRetryLimit(t *testing.T) {
	srv := &chunkServer{
		t:         t,
		chunkSize: 64 * 1024,
		failures:  map[int]int{0: 100},
	}
	up, _ := newUploader(t, srv.handler(), func(cfg *config.Config) {
		cfg.Server.BodyLimitMiB = 0
		cfg.Ingest.ChunkRetryLimit = 2
	})

	payload := payloadFile(t, "tour.mp4", 200*1024)
	payload.ContentType = "video/mp4"
	_, err := up.Upload(t.Context(), payload, nil)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected ErrTransport after retries, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Fatalf("error should name the attempt count: %v", err)
	}
}

func TestUploadChunkedFinalDuplicate(t *testing.T) {
	existing := asset.Descriptor{ID: "old-video"}
	srv := &chunkServer{
		t:         t,
		chunkSize: 64 * 1024,
		final:     api.UploadResponse{Duplicate: true, ExistingMedia: &existing},
	}
	up, _ := newUploader(t, srv.handler(), func(cfg *config.Config) {
		cfg.Server.BodyLimitMiB = 0
	})

	payload := payloadFile(t, "tour.mp4", 200*1024)
	payload.ContentType = "video/mp4"
	outcome, err := up.Upload(t.Context(), payload, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.DuplicateShortCircuit || outcome.Asset.ID != "old-video" {
		t.Fatalf("final-chunk 409 should short circuit: %+v", outcome)
	}
}

func TestUploadChunkedSizeArithmetic(t *testing.T) {
	// Payload size is not a multiple of the chunk size; the last chunk
	// carries the remainder.
	srv := &chunkServer{
		t:         t,
		chunkSize: 64 * 1024,
		final:     api.UploadResponse{Asset: &asset.Descriptor{ID: "x"}},
	}
	up, _ := newUploader(t, srv.handler(), func(cfg *config.Config) {
		cfg.Server.BodyLimitMiB = 0
	})

	payload := payloadFile(t, "odd.mp4", 150*1024+17)
	payload.ContentType = "video/mp4"
	if _, err := up.Upload(t.Context(), payload, nil); err != nil {
		t.Fatal(err)
	}
	if got := int(srv.received.Load()); got != 3 {
		t.Fatalf("expected 3 chunks, server saw %d", got)
	}
}

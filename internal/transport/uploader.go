// Package transport moves payloads to the asset service. Size alone
// picks the mechanism: small payloads go up as one multipart request,
// large ones as a resumable chunked session. The hard size ceiling is
// enforced here, before any bytes move.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/semaphore"

	"loft/internal/apiclient"
	"loft/internal/asset"
	"loft/internal/config"
	"loft/internal/logging"
	"loft/internal/services"
)

// Payload is one file ready to upload.
type Payload struct {
	Path        string
	Filename    string
	ContentType string
	SizeBytes   int64
	Width       int
	Height      int
	Duration    float64
	// Force bypasses the server's dedup check after an explicit
	// upload-anyway decision.
	Force bool
}

// Progress reports transfer position.
type Progress struct {
	Tier        string
	SentBytes   int64
	TotalBytes  int64
	ChunkIndex  int
	TotalChunks int
}

// Outcome is a completed transfer.
type Outcome struct {
	Asset *asset.Descriptor
	// DuplicateShortCircuit is set when the server answered with an
	// existing asset instead of storing the payload.
	DuplicateShortCircuit bool
}

// Uploader selects and drives the transfer mechanism.
type Uploader struct {
	cfg    *config.Config
	client *apiclient.Client
	logger *slog.Logger
	// slots caps concurrent large-tier transfers across a batch.
	slots *semaphore.Weighted
}

func New(cfg *config.Config, client *apiclient.Client, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = logging.NewNop()
	}
	slots := int64(cfg.Ingest.LargeTransferSlots)
	if slots <= 0 {
		slots = 2
	}
	return &Uploader{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "transport"),
		slots:  semaphore.NewWeighted(slots),
	}
}

// Upload moves one payload. The ceiling check runs before any network
// activity so oversized files fail fast with a size the caller can
// report.
func (u *Uploader) Upload(ctx context.Context, payload Payload, onProgress func(Progress)) (*Outcome, error) {
	if payload.SizeBytes > u.cfg.MaxUploadBytes() {
		return nil, services.Wrap(services.ErrPayloadTooLarge, "transport", "select",
			fmt.Sprintf("payload is %d bytes, ceiling is %d", payload.SizeBytes, u.cfg.MaxUploadBytes()), nil)
	}

	if payload.SizeBytes <= u.cfg.BodyLimitBytes() {
		return u.uploadDirect(ctx, payload, onProgress)
	}
	return u.uploadChunked(ctx, payload, onProgress)
}

func (u *Uploader) uploadDirect(ctx context.Context, payload Payload, onProgress func(Progress)) (*Outcome, error) {
	f, err := os.Open(payload.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "transport", "open", "cannot read payload", err)
	}
	defer f.Close()

	reader := newCountingReader(f, func(sent int64) {
		if onProgress != nil {
			onProgress(Progress{Tier: "direct", SentBytes: sent, TotalBytes: payload.SizeBytes})
		}
	})

	resp, err := u.client.UploadDirect(ctx, reader, apiclient.UploadMeta{
		Filename:    payload.Filename,
		ContentType: payload.ContentType,
		Width:       payload.Width,
		Height:      payload.Height,
		Duration:    payload.Duration,
		Force:       payload.Force,
	})
	if err != nil {
		return nil, err
	}

	if resp.Duplicate {
		u.logger.Info("server short-circuited duplicate upload",
			logging.String("filename", payload.Filename))
		return &Outcome{Asset: resp.ExistingMedia, DuplicateShortCircuit: true}, nil
	}
	u.logger.Info("direct upload complete",
		logging.String("filename", payload.Filename),
		logging.Int64("bytes", payload.SizeBytes))
	return &Outcome{Asset: resp.Asset}, nil
}

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"loft/internal/api"
	"loft/internal/logging"
	"loft/internal/services"
)

// uploadChunked streams the payload through a chunked session. A
// large-tier slot is held for the whole session so a batch cannot
// saturate the link.
func (u *Uploader) uploadChunked(ctx context.Context, payload Payload, onProgress func(Progress)) (*Outcome, error) {
	if err := u.slots.Acquire(ctx, 1); err != nil {
		return nil, services.Wrap(services.ErrCancelled, "transport", "acquire", "upload cancelled while queued", err)
	}
	defer u.slots.Release(1)

	chunkSize := u.cfg.ChunkSizeBytes()
	start, err := u.client.StartSession(ctx, api.ChunkStartRequest{
		Filename:    payload.Filename,
		ContentType: payload.ContentType,
		TotalSize:   payload.SizeBytes,
		ChunkSize:   chunkSize,
		Force:       payload.Force,
	})
	if err != nil {
		return nil, err
	}
	chunkSize = start.ChunkSize

	u.logger.Info("chunked upload started",
		logging.String("filename", payload.Filename),
		logging.String("session_id", start.SessionID),
		logging.Int64("bytes", payload.SizeBytes),
		logging.Int("chunks", start.TotalChunks))

	f, err := os.Open(payload.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "transport", "open", "cannot read payload", err)
	}
	defer f.Close()

	var sent int64
	buf := make([]byte, chunkSize)
	for index := 0; index < start.TotalChunks; index++ {
		size := chunkSize
		if remaining := payload.SizeBytes - sent; remaining < size {
			size = remaining
		}
		if _, err := io.ReadFull(f, buf[:size]); err != nil {
			return nil, services.Wrap(services.ErrTransport, "transport", "read",
				fmt.Sprintf("failed to read chunk %d", index), err)
		}

		outcome, err := u.sendChunkWithRetry(ctx, start.SessionID, index, buf[:size])
		if err != nil {
			return nil, err
		}
		sent += size
		if onProgress != nil {
			onProgress(Progress{
				Tier:        "chunked",
				SentBytes:   sent,
				TotalBytes:  payload.SizeBytes,
				ChunkIndex:  index,
				TotalChunks: start.TotalChunks,
			})
		}
		if outcome != nil {
			if outcome.DuplicateShortCircuit {
				u.logger.Info("server short-circuited duplicate upload",
					logging.String("filename", payload.Filename),
					logging.String("session_id", start.SessionID))
			} else {
				u.logger.Info("chunked upload complete",
					logging.String("filename", payload.Filename),
					logging.Int64("bytes", payload.SizeBytes))
			}
			return outcome, nil
		}
	}
	return nil, services.Wrap(services.ErrTransport, "transport", "chunk",
		"session ended without a final response", nil)
}

// sendChunkWithRetry retries one chunk in place with exponential
// backoff. Only the failed chunk is resent, never the whole payload.
func (u *Uploader) sendChunkWithRetry(ctx context.Context, sessionID string, index int, data []byte) (*Outcome, error) {
	limit := u.cfg.Ingest.ChunkRetryLimit
	if limit <= 0 {
		limit = 3
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		ack, final, err := u.client.PutChunk(ctx, sessionID, index, bytes.NewReader(data), int64(len(data)))
		if err == nil {
			if final != nil {
				if final.Duplicate {
					return &Outcome{Asset: final.ExistingMedia, DuplicateShortCircuit: true}, nil
				}
				return &Outcome{Asset: final.Asset}, nil
			}
			_ = ack
			return nil, nil
		}
		// Size rejections and validation failures never heal on retry.
		if !services.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		u.logger.Warn("chunk upload failed, retrying",
			logging.String("session_id", sessionID),
			logging.Int("chunk", index),
			logging.Int("attempt", attempt),
			logging.Error(err))

		select {
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrCancelled, "transport", "chunk", "upload cancelled", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, services.Wrap(services.ErrTransport, "transport", "chunk",
		fmt.Sprintf("chunk %d failed after %d attempts", index, limit), lastErr)
}

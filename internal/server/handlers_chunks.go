package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loft/internal/api"
	"loft/internal/asset"
	"loft/internal/catalog"
	"loft/internal/fileutil"
	"loft/internal/fingerprint"
	"loft/internal/logging"
	"loft/internal/storage"
)

// handleSessionStart opens a chunked upload session. Chunks are staged
// under the staging directory until the last one arrives, then the
// payload is assembled and indexed like a direct upload.
func (s *Server) handleSessionStart(c *gin.Context) {
	var req api.ChunkStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "invalid session request")
		return
	}
	if req.Filename == "" || req.TotalSize <= 0 {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "filename and totalSize are required")
		return
	}
	if _, ok := asset.MediaTypeForContentType(req.ContentType); !ok {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "unsupported content type "+req.ContentType)
		return
	}
	if req.TotalSize > s.cfg.MaxUploadBytes() {
		writeTooLarge(c, req.TotalSize, s.cfg.MaxUploadBytes())
		return
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.cfg.ChunkSizeBytes()
	}
	totalChunks := int((req.TotalSize + chunkSize - 1) / chunkSize)

	sess, err := s.store.CreateSession(c.Request.Context(),
		fileutil.NormalizeFilename(req.Filename), req.ContentType,
		req.TotalSize, chunkSize, totalChunks, req.Force)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to create session")
		return
	}
	if err := os.MkdirAll(s.sessionDir(sess.ID), 0o755); err != nil {
		_ = s.store.DeleteSession(c.Request.Context(), sess.ID)
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to stage session")
		return
	}

	s.logger.Info("upload session opened",
		logging.String("session_id", sess.ID),
		logging.String("filename", sess.Filename),
		logging.Int64("bytes", sess.TotalSize),
		logging.Int("chunks", sess.TotalChunks))

	c.JSON(http.StatusCreated, api.ChunkStartResponse{
		SessionID:   sess.ID,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
	})
}

// handleChunk stores one chunk body. Receiving the final outstanding
// chunk assembles and indexes the asset; the response then carries the
// full UploadResponse instead of a ChunkAck.
func (s *Server) handleChunk(c *gin.Context) {
	sessionID := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "chunk index must be an integer")
		return
	}

	sess, err := s.store.GetSession(c.Request.Context(), sessionID)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(c, http.StatusNotFound, api.CodeNotFound, "no such upload session")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "session lookup failed")
		return
	}
	if index < 0 || index >= sess.TotalChunks {
		writeError(c, http.StatusBadRequest, api.CodeValidation,
			fmt.Sprintf("chunk index %d out of range [0,%d)", index, sess.TotalChunks))
		return
	}

	// Every chunk carries exactly ChunkSize bytes except the last,
	// which carries the remainder.
	limit := sess.ChunkSize
	if index == sess.TotalChunks-1 {
		limit = sess.TotalSize - int64(index)*sess.ChunkSize
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	chunkPath := filepath.Join(s.sessionDir(sess.ID), strconv.Itoa(index))
	dst, err := os.Create(chunkPath)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to stage chunk")
		return
	}
	written, err := io.Copy(dst, body)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(chunkPath)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(c, c.Request.ContentLength, limit)
			return
		}
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to write chunk")
		return
	}
	if written != limit {
		os.Remove(chunkPath)
		writeError(c, http.StatusBadRequest, api.CodeValidation,
			fmt.Sprintf("chunk %d size mismatch: got %d, want %d", index, written, limit))
		return
	}

	sess, err = s.store.MarkChunk(c.Request.Context(), sess.ID, index)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to record chunk")
		return
	}

	if !sess.Complete() {
		c.JSON(http.StatusOK, api.ChunkAck{
			SessionID: sess.ID,
			Index:     index,
			Received:  sess.Received(),
			Remaining: sess.TotalChunks - sess.Received(),
		})
		return
	}

	s.finalizeSession(c, sess)
}

// finalizeSession assembles the staged chunks, indexes the asset, and
// tears the session down.
func (s *Server) finalizeSession(c *gin.Context, sess *catalog.Session) {
	ctx := c.Request.Context()
	dir := s.sessionDir(sess.ID)
	assembled := filepath.Join(dir, "assembled")

	out, err := os.Create(assembled)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to assemble payload")
		return
	}
	var total int64
	for i := 0; i < sess.TotalChunks && err == nil; i++ {
		var chunk *os.File
		chunk, err = os.Open(filepath.Join(dir, strconv.Itoa(i)))
		if err != nil {
			break
		}
		var n int64
		n, err = io.Copy(out, chunk)
		chunk.Close()
		total += n
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to assemble payload")
		return
	}
	if total != sess.TotalSize {
		writeError(c, http.StatusInternalServerError, api.CodeInternal,
			fmt.Sprintf("assembled size mismatch: got %d, want %d", total, sess.TotalSize))
		return
	}

	mediaType, _ := asset.MediaTypeForContentType(sess.ContentType)
	rec := catalog.NewAsset{
		ID:               uuid.NewString(),
		MediaType:        mediaType,
		SizeBytes:        total,
		OriginalFilename: sess.Filename,
	}

	// Large payloads skip hashing, same as the uploader. A forced session
	// skips it too: the caller chose to keep both copies, and a second
	// identical digest would violate the index.
	if !sess.Force {
		if f, err := os.Open(assembled); err == nil {
			digest := fingerprint.Compute(ctx, f, total, s.cfg.FingerprintCeilingBytes())
			f.Close()
			if !digest.IsIndeterminate() {
				rec.Fingerprint = string(digest)
			}
		}
	}

	if rec.Fingerprint != "" {
		existing, err := s.store.FindByFingerprint(ctx, rec.Fingerprint)
		if err == nil && existing != nil {
			s.cleanupSession(ctx, sess.ID)
			if s.metrics != nil {
				s.metrics.RecordDedupHit("digest")
			}
			c.JSON(http.StatusConflict, api.UploadResponse{
				URL:           existing.URL,
				Filename:      existing.OriginalFilename,
				Duplicate:     true,
				ExistingMedia: existing,
			})
			return
		}
	}

	key := storage.AssetKey(rec.ID, sess.Filename)
	payload, err := os.Open(assembled)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to read assembled payload")
		return
	}
	url, err := s.backend.Put(ctx, key, payload, total, sess.ContentType)
	payload.Close()
	if err != nil {
		s.logger.Error("blob store failed", logging.Error(err), logging.String("key", key))
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to store payload")
		return
	}
	rec.URL = url

	desc, err := s.store.InsertAsset(ctx, rec)
	if errors.Is(err, catalog.ErrFingerprintExists) {
		_ = s.backend.Delete(ctx, key)
		s.cleanupSession(ctx, sess.ID)
		c.JSON(http.StatusConflict, api.UploadResponse{
			URL:           desc.URL,
			Filename:      desc.OriginalFilename,
			Duplicate:     true,
			ExistingMedia: desc,
		})
		return
	}
	if err != nil {
		_ = s.backend.Delete(ctx, key)
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to index asset")
		return
	}

	s.cleanupSession(ctx, sess.ID)
	if s.metrics != nil {
		s.metrics.RecordUpload("chunked", "stored", desc.SizeBytes)
	}
	s.logger.Info("asset stored",
		logging.String(logging.FieldAssetID, desc.ID),
		logging.String("filename", desc.OriginalFilename),
		logging.Int64("bytes", desc.SizeBytes),
		logging.Int("chunks", sess.TotalChunks))

	c.JSON(http.StatusCreated, api.UploadResponse{
		URL:      desc.URL,
		Filename: desc.OriginalFilename,
		Asset:    desc,
	})
}

func (s *Server) cleanupSession(ctx context.Context, sessionID string) {
	_ = os.RemoveAll(s.sessionDir(sessionID))
	_ = s.store.DeleteSession(ctx, sessionID)
}

// SweepExpiredSessions removes sessions idle past the cutoff together
// with their staged chunks. The daemon runs this on a timer.
func (s *Server) SweepExpiredSessions(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.store.ExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.cleanupSession(ctx, id)
	}
	if len(ids) > 0 && s.metrics != nil {
		s.metrics.RecordExpiredSessions(len(ids))
	}
	return len(ids), nil
}

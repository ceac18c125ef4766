package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"strconv"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

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

// handleUpload accepts a small-tier payload as multipart form data. The
// whole body must fit the configured limit; anything larger is rejected
// with 413 and the caller falls back to the chunked flow.
func (s *Server) handleUpload(c *gin.Context) {
	limit := s.cfg.BodyLimitBytes()
	if c.Request.ContentLength > limit {
		writeTooLarge(c, c.Request.ContentLength, limit)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(c, c.Request.ContentLength, limit)
			return
		}
		writeError(c, http.StatusBadRequest, api.CodeValidation, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(c, c.Request.ContentLength, limit)
			return
		}
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to read payload")
		return
	}

	filename := fileutil.NormalizeFilename(header.Filename)
	contentType := header.Header.Get("Content-Type")
	mediaType, ok := asset.MediaTypeForContentType(contentType)
	if !ok {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "unsupported content type "+contentType)
		return
	}

	rec := catalog.NewAsset{
		ID:               uuid.NewString(),
		MediaType:        mediaType,
		SizeBytes:        int64(len(data)),
		OriginalFilename: filename,
	}
	if int64(len(data)) <= s.cfg.FingerprintCeilingBytes() {
		rec.Fingerprint = string(fingerprint.Sum(data))
	}
	fillClientMetadata(c, &rec)
	if mediaType == asset.MediaImage && rec.Width == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			rec.Width, rec.Height = cfg.Width, cfg.Height
		}
	}

	// Server-side dedup is the safety net behind the client's own check.
	force := c.Query("force") == "1"
	if rec.Fingerprint != "" && !force {
		existing, err := s.store.FindByFingerprint(c.Request.Context(), rec.Fingerprint)
		if err != nil {
			writeError(c, http.StatusInternalServerError, api.CodeInternal, "duplicate lookup failed")
			return
		}
		if existing != nil {
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
	if force {
		// The caller chose to keep both copies; a second identical digest
		// would violate the index, so the duplicate row stays unhashed.
		rec.Fingerprint = ""
	}

	key := storage.AssetKey(rec.ID, filename)
	url, err := s.backend.Put(c.Request.Context(), key, bytes.NewReader(data), rec.SizeBytes, contentType)
	if err != nil {
		s.logger.Error("blob store failed", logging.Error(err), logging.String("key", key))
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to store payload")
		return
	}
	rec.URL = url

	desc, err := s.store.InsertAsset(c.Request.Context(), rec)
	if errors.Is(err, catalog.ErrFingerprintExists) {
		// Lost a race with an identical concurrent upload. Keep the winner.
		_ = s.backend.Delete(c.Request.Context(), key)
		c.JSON(http.StatusConflict, api.UploadResponse{
			URL:           desc.URL,
			Filename:      desc.OriginalFilename,
			Duplicate:     true,
			ExistingMedia: desc,
		})
		return
	}
	if err != nil {
		_ = s.backend.Delete(c.Request.Context(), key)
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to index asset")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordUpload("direct", "stored", desc.SizeBytes)
	}
	s.logger.Info("asset stored",
		logging.String(logging.FieldAssetID, desc.ID),
		logging.String("filename", desc.OriginalFilename),
		logging.Int64("bytes", desc.SizeBytes))

	c.JSON(http.StatusCreated, api.UploadResponse{
		URL:      desc.URL,
		Filename: desc.OriginalFilename,
		Asset:    desc,
	})
}

// fillClientMetadata copies probe results the uploader already has, so
// the server does not need its own probe pass for video payloads.
func fillClientMetadata(c *gin.Context, rec *catalog.NewAsset) {
	if v, err := strconv.Atoi(c.PostForm("width")); err == nil && v > 0 {
		rec.Width = v
	}
	if v, err := strconv.Atoi(c.PostForm("height")); err == nil && v > 0 {
		rec.Height = v
	}
	if v, err := strconv.ParseFloat(c.PostForm("duration"), 64); err == nil && v > 0 {
		rec.DurationSeconds = v
	}
}

func (s *Server) handleListAssets(c *gin.Context) {
	limit := 100
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	assets, err := s.store.ListAssets(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "failed to list assets")
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (s *Server) handleGetAsset(c *gin.Context) {
	desc, err := s.store.GetAsset(c.Request.Context(), c.Param("id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(c, http.StatusNotFound, api.CodeNotFound, "no such asset")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "lookup failed")
		return
	}
	c.JSON(http.StatusOK, desc)
}

// handleDuplicateCheck answers hash and filename probes. A digest match
// is authoritative; a filename match is only a hint and callers must
// confirm with the user before reusing it.
func (s *Server) handleDuplicateCheck(c *gin.Context) {
	hash := c.Query("hash")
	name := c.Query("name")
	if hash == "" && name == "" {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "hash or name query parameter is required")
		return
	}

	var (
		match         *asset.Descriptor
		authoritative bool
		err           error
	)
	if hash != "" {
		match, err = s.store.FindByFingerprint(c.Request.Context(), hash)
		authoritative = match != nil
	}
	if match == nil && name != "" && err == nil {
		match, err = s.store.FindByFilename(c.Request.Context(), name)
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "duplicate lookup failed")
		return
	}
	if match == nil {
		c.JSON(http.StatusOK, api.DuplicateCheckResponse{Exists: false})
		return
	}

	usage, err := s.store.UsageLocations(c.Request.Context(), match.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "usage lookup failed")
		return
	}
	if s.metrics != nil {
		kind := "filename"
		if authoritative {
			kind = "digest"
		}
		s.metrics.RecordDedupHit(kind)
	}
	c.JSON(http.StatusOK, api.DuplicateCheckResponse{
		Exists:        true,
		Media:         match,
		Usage:         usage,
		Authoritative: authoritative,
	})
}

func (s *Server) handleAttachUsage(c *gin.Context) {
	s.handleUsageMutation(c, s.store.Attach, "attach")
}

func (s *Server) handleDetachUsage(c *gin.Context) {
	s.handleUsageMutation(c, s.store.Detach, "detach")
}

func (s *Server) handleUsageMutation(c *gin.Context, mutate func(ctx context.Context, assetID string, loc asset.UsageLocation) (*asset.Descriptor, error), op string) {
	var req api.UsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "invalid usage payload")
		return
	}
	loc, ok := usageFromRequest(req)
	if !ok {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "propertyId, zoneId and stepId are required")
		return
	}

	desc, err := mutate(c.Request.Context(), c.Param("id"), loc)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(c, http.StatusNotFound, api.CodeNotFound, "no such asset")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "usage update failed")
		return
	}

	usage, err := s.store.UsageLocations(c.Request.Context(), desc.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "usage lookup failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordUsageOp(op)
	}
	c.JSON(http.StatusOK, api.UsageResponse{
		AssetID:    desc.ID,
		UsageCount: desc.UsageCount,
		Usage:      usage,
	})
}

func (s *Server) handleDeletionReport(c *gin.Context) {
	var req api.DeletionReportRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.AssetIDs) == 0 {
		writeError(c, http.StatusBadRequest, api.CodeValidation, "assetIds is required")
		return
	}

	entries, err := s.store.DeletionReport(c.Request.Context(), req.AssetIDs)
	if err != nil {
		writeError(c, http.StatusInternalServerError, api.CodeInternal, "deletion report failed")
		return
	}

	out := make([]api.DeletionReportEntry, len(entries))
	for i, e := range entries {
		out[i] = api.DeletionReportEntry{AssetID: e.AssetID, Known: e.Known, Usage: e.Usage}
	}
	c.JSON(http.StatusOK, api.DeletionReportResponse{Entries: out})
}

// Package server implements the asset service HTTP API: small-tier and
// chunked uploads, duplicate lookups, the usage ledger, and deletion
// reports. Handlers are thin; durable state lives in the catalog and the
// storage backend.
package server

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"loft/internal/api"
	"loft/internal/asset"
	"loft/internal/catalog"
	"loft/internal/config"
	"loft/internal/logging"
	"loft/internal/metrics"
	"loft/internal/storage"
)

// Server wires the HTTP surface to the catalog and blob storage.
type Server struct {
	cfg     *config.Config
	store   *catalog.Store
	backend storage.Backend
	metrics *metrics.Collector
	logger  *slog.Logger
	engine  *gin.Engine
}

// New builds the server and its route table.
func New(cfg *config.Config, store *catalog.Store, backend storage.Backend, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		store:   store,
		backend: backend,
		metrics: collector,
		logger:  logging.NewComponentLogger(logger, "server"),
	}

	engine := gin.New()
	engine.Use(s.requestID(), s.requestLog(), gin.Recovery())
	if collector != nil {
		engine.Use(collector.Middleware())
	}

	engine.GET("/healthz", s.handleHealth)
	if collector != nil {
		engine.GET("/metrics", collector.Handler())
	}

	v1 := engine.Group("/v1", s.auth())
	v1.POST("/assets", s.handleUpload)
	v1.GET("/assets", s.handleListAssets)
	v1.GET("/assets/:id", s.handleGetAsset)
	v1.POST("/assets/:id/usage", s.handleAttachUsage)
	v1.DELETE("/assets/:id/usage", s.handleDetachUsage)
	v1.POST("/assets/deletion-report", s.handleDeletionReport)
	v1.GET("/duplicates", s.handleDuplicateCheck)
	v1.POST("/uploads", s.handleSessionStart)
	v1.PUT("/uploads/:id/chunks/:index", s.handleChunk)

	s.engine = engine
	return s
}

// Handler exposes the router for net/http servers and tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) sessionDir(sessionID string) string {
	return filepath.Join(s.cfg.Paths.StagingDir, "sessions", sessionID)
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.CountAssets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, api.HealthResponse{Status: "degraded", Service: "loftd"})
		return
	}
	if s.metrics != nil {
		s.metrics.SetAssetCount(count)
	}
	c.JSON(http.StatusOK, api.HealthResponse{Status: "ok", Service: "loftd", Assets: count})
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: message, Code: code})
}

func writeTooLarge(c *gin.Context, size, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, api.ErrorResponse{
		Error:      "payload exceeds the configured size limit",
		Code:       api.CodePayloadTooLarge,
		SizeBytes:  size,
		LimitBytes: limit,
	})
}

func usageFromRequest(req api.UsageRequest) (asset.UsageLocation, bool) {
	loc := asset.UsageLocation{PropertyID: req.PropertyID, ZoneID: req.ZoneID, StepID: req.StepID}
	return loc, loc.PropertyID != "" && loc.ZoneID != "" && loc.StepID != ""
}

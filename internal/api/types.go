// Package api defines the wire types exchanged between the asset service and
// its clients (the ingestion pipeline and the CLI).
package api

import "loft/internal/asset"

// UploadResponse is returned by the small-tier upload endpoint and by the
// final chunk of a chunked session.
type UploadResponse struct {
	URL      string            `json:"url"`
	Filename string            `json:"filename"`
	Asset    *asset.Descriptor `json:"asset,omitempty"`
	// Duplicate is set when the server's own dedup check fired; ExistingMedia
	// then carries the already-persisted asset and no new asset was created.
	Duplicate     bool              `json:"duplicate,omitempty"`
	ExistingMedia *asset.Descriptor `json:"existingMedia,omitempty"`
}

// DuplicateCheckResponse answers GET /v1/duplicates.
type DuplicateCheckResponse struct {
	Exists bool                  `json:"exists"`
	Media  *asset.Descriptor     `json:"media,omitempty"`
	Usage  []asset.UsageLocation `json:"usage,omitempty"`
	// Authoritative is true for digest matches, false for filename matches.
	Authoritative bool `json:"authoritative,omitempty"`
}

// ChunkStartRequest opens a chunked upload session.
type ChunkStartRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	TotalSize   int64  `json:"totalSize"`
	ChunkSize   int64  `json:"chunkSize"`
	// Force stores the payload even when the server's dedup check on the
	// assembled bytes would answer duplicate.
	Force bool `json:"force,omitempty"`
}

// ChunkStartResponse carries the session identifier and chunk arithmetic the
// client must follow.
type ChunkStartResponse struct {
	SessionID   string `json:"sessionId"`
	ChunkSize   int64  `json:"chunkSize"`
	TotalChunks int    `json:"totalChunks"`
}

// ChunkAck acknowledges a single stored chunk.
type ChunkAck struct {
	SessionID string `json:"sessionId"`
	Index     int    `json:"index"`
	Received  int    `json:"received"`
	Remaining int    `json:"remaining"`
}

// UsageRequest attaches or detaches a usage location.
type UsageRequest struct {
	PropertyID string `json:"propertyId"`
	ZoneID     string `json:"zoneId"`
	StepID     string `json:"stepId"`
}

// UsageResponse reports the asset's usage after a mutation.
type UsageResponse struct {
	AssetID    string                `json:"assetId"`
	UsageCount int                   `json:"usageCount"`
	Usage      []asset.UsageLocation `json:"usage,omitempty"`
}

// DeletionReportRequest asks, for a batch of assets, who still uses them.
type DeletionReportRequest struct {
	AssetIDs []string `json:"assetIds"`
}

// DeletionReportEntry is the per-asset answer: deletion should be blocked or
// warned about while Usage is non-empty.
type DeletionReportEntry struct {
	AssetID string                `json:"assetId"`
	Known   bool                  `json:"known"`
	Usage   []asset.UsageLocation `json:"usage"`
}

// DeletionReportResponse wraps the batch entries.
type DeletionReportResponse struct {
	Entries []DeletionReportEntry `json:"entries"`
}

// ErrorResponse is the uniform error body for non-2xx answers.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// SizeBytes accompanies payload-too-large answers so the caller can
	// suggest a concrete remedy.
	SizeBytes int64 `json:"sizeBytes,omitempty"`
	// LimitBytes is the limit the payload exceeded.
	LimitBytes int64 `json:"limitBytes,omitempty"`
}

// Error codes used in ErrorResponse.Code.
const (
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeDuplicate       = "DUPLICATE"
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION"
	CodeInternal        = "INTERNAL"
)

// HealthResponse answers GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Assets  int    `json:"assets"`
}

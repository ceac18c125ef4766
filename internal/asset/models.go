package asset

import (
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// MediaType classifies the payload of an asset.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// ParseMediaType converts a string into a known MediaType.
func ParseMediaType(value string) (MediaType, bool) {
	normalized := MediaType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case MediaImage, MediaVideo:
		return normalized, true
	}
	return "", false
}

// MediaTypeForContentType maps a MIME content type onto a MediaType.
func MediaTypeForContentType(contentType string) (MediaType, bool) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaImage, true
	case strings.HasPrefix(contentType, "video/"):
		return MediaVideo, true
	}
	return "", false
}

// ContentTypeForPath guesses a MIME type and MediaType from the file
// extension. ok is false for anything that is not a known image or video.
func ContentTypeForPath(path string) (contentType string, mediaType MediaType, ok bool) {
	ext := strings.ToLower(filepath.Ext(path))
	contentType = mime.TypeByExtension(ext)
	if contentType == "" {
		// Common media extensions missing from minimal system MIME tables.
		switch ext {
		case ".mp4", ".m4v":
			contentType = "video/mp4"
		case ".mov":
			contentType = "video/quicktime"
		case ".mkv":
			contentType = "video/x-matroska"
		case ".webm":
			contentType = "video/webm"
		case ".heic":
			contentType = "image/heic"
		case ".webp":
			contentType = "image/webp"
		default:
			return "", "", false
		}
	}
	mediaType, ok = MediaTypeForContentType(contentType)
	if !ok {
		return "", "", false
	}
	return contentType, mediaType, true
}

// Descriptor is the durable, persisted media object owned by the asset index.
// Immutable once persisted except for usage count and last-used timestamp.
type Descriptor struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	MediaType        MediaType `json:"mediaType"`
	SizeBytes        int64     `json:"sizeBytes"`
	OriginalFilename string    `json:"originalFilename"`
	Width            int       `json:"width,omitempty"`
	Height           int       `json:"height,omitempty"`
	DurationSeconds  float64   `json:"durationSeconds,omitempty"`
	ThumbnailURL     string    `json:"thumbnailUrl,omitempty"`
	// Fingerprint is empty when hashing was skipped for size. Once set it is
	// never recomputed or mutated.
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUsedAt  time.Time `json:"lastUsedAt,omitempty"`
	UsageCount  int       `json:"usageCount"`
}

// UsageLocation is one (property, zone, step) tuple referencing an asset.
type UsageLocation struct {
	PropertyID string `json:"propertyId"`
	ZoneID     string `json:"zoneId"`
	StepID     string `json:"stepId"`
}

// Candidate is a read-only projection of an existing asset plus its usage
// locations, returned by duplicate resolution so a human can decide reuse vs
// upload anyway.
type Candidate struct {
	Asset Descriptor      `json:"asset"`
	Usage []UsageLocation `json:"usage"`
	// Authoritative is true for content-addressed (digest) matches and false
	// for filename heuristics, which can collide and always require explicit
	// confirmation.
	Authoritative bool `json:"authoritative"`
}

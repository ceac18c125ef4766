package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the ingestion error taxonomy. Soft markers degrade to
// the next-best strategy inside the pipeline; hard markers surface to the
// caller verbatim.
var (
	// ErrIndeterminate tags fingerprinting that declined or failed. Dedup is
	// best-effort, so the pipeline continues without a digest.
	ErrIndeterminate = errors.New("fingerprint indeterminate")
	// ErrDuplicateDecision tags the expected pause when a duplicate candidate
	// requires an explicit caller decision. Not a failure.
	ErrDuplicateDecision = errors.New("duplicate requires decision")
	// ErrCompression tags a failed compression pass. The compressor falls back
	// to the original bytes rather than failing the upload.
	ErrCompression = errors.New("compression failed")
	// ErrPayloadTooLarge tags a payload the transport refuses. User-actionable
	// and not retryable without changing the input.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrTransport tags transient network or server failures. Retryable.
	ErrTransport = errors.New("transport failure")
	// ErrCancelled tags cooperative cancellation. Expected, not a failure.
	ErrCancelled = errors.New("cancelled")

	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether the caller may retry the same payload without
// changing it. Payload-too-large and validation failures are excluded.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPayloadTooLarge),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrCancelled):
		return false
	}
	return errors.Is(err, ErrTransport)
}

// IsSoft reports whether the pipeline absorbs the failure and keeps making
// progress with a degraded strategy.
func IsSoft(err error) bool {
	return errors.Is(err, ErrIndeterminate) || errors.Is(err, ErrCompression)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

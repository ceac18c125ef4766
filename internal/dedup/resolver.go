// Package dedup decides whether a file about to be uploaded already
// exists on the server. Lookups are best effort: the pipeline would
// rather upload a duplicate than block ingestion on a slow index.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"loft/internal/api"
	"loft/internal/asset"
	"loft/internal/fingerprint"
	"loft/internal/logging"
)

// Checker is the server-side lookup the resolver depends on.
type Checker interface {
	CheckDuplicate(ctx context.Context, hash, name string) (*api.DuplicateCheckResponse, error)
}

// Match is the outcome of a duplicate lookup.
type Match struct {
	// Found is false when nothing matched or the lookup was skipped.
	Found bool
	// Authoritative is true only for content digest matches. Filename
	// matches always need a human decision before reuse.
	Authoritative bool
	Media         *asset.Descriptor
	Usage         []asset.UsageLocation
}

// Resolver performs duplicate lookups with a hard timeout.
type Resolver struct {
	checker Checker
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a resolver. A zero timeout defaults to three seconds.
func New(checker Checker, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		checker: checker,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "dedup"),
	}
}

// Resolve looks the digest and filename up on the server. An
// indeterminate digest skips the hash probe. Any transport failure or
// timeout degrades to no-match.
func (r *Resolver) Resolve(ctx context.Context, digest fingerprint.Digest, filename string) Match {
	hash := ""
	if !digest.IsIndeterminate() {
		hash = string(digest)
	}
	if hash == "" && filename == "" {
		return Match{}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.checker.CheckDuplicate(lookupCtx, hash, filename)
	if err != nil {
		// The pipeline proceeds as if the file were new.
		r.logger.Warn("duplicate lookup degraded to no-match",
			logging.String("filename", filename),
			logging.Error(err))
		return Match{}
	}
	if !resp.Exists {
		return Match{}
	}

	r.logger.Info("duplicate candidate found",
		logging.String("filename", filename),
		logging.Bool("authoritative", resp.Authoritative),
		logging.Int("usage_locations", len(resp.Usage)))
	return Match{
		Found:         true,
		Authoritative: resp.Authoritative,
		Media:         resp.Media,
		Usage:         resp.Usage,
	}
}

package preflight

import (
	"context"

	"loft/internal/config"
	"loft/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))

	if cfg.Ingest.MinFreeSpaceMiB > 0 {
		results = append(results, CheckFreeSpace(cfg.Paths.StagingDir, cfg.MinFreeSpaceBytes()))
	}

	if cfg.Ingest.ServerURL != "" {
		results = append(results, CheckServer(ctx, cfg.Ingest.ServerURL, cfg.Paths.APIToken))
	}

	return results
}

// CheckSystemDeps evaluates the external binaries the pipeline shells out
// to. Both encoders are optional; the compressor falls back to the original
// file when they are missing.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.EncodingRequirements(
		cfg.Compression.FFmpegBinary, cfg.Compression.FFprobeBinary))
}

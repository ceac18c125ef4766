// Package compress shrinks video payloads before upload. Passes walk a
// fixed quality ladder downward until the output fits the target
// ceiling; anything that goes wrong falls back to the original file
// because a too-big upload is recoverable and a lost one is not.
package compress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"loft/internal/asset"
	"loft/internal/config"
	"loft/internal/fileutil"
	"loft/internal/logging"
	"loft/internal/media/ffprobe"
	"loft/internal/services"
)

// Source identifies the file a pass reads.
type Source struct {
	Path      string
	SizeBytes int64
	MediaType asset.MediaType
}

// Options tunes a single Compress call.
type Options struct {
	// OnProgress receives overall percentages. Advisory.
	OnProgress func(percent float64)
}

// Result reports what Compress produced.
type Result struct {
	// Path points at the payload to upload: a compressed temp file, or
	// the untouched input when compression was skipped or fell back.
	Path      string
	SizeBytes int64
	Passes    int
	Rung      string
	// FellBack is true when the original bytes are returned because
	// compression failed or could not help.
	FellBack bool
}

// Compressor drives the quality ladder.
type Compressor struct {
	cfg     *config.Config
	engine  Engine
	logger  *slog.Logger
	sampler *logging.ProgressSampler
}

func New(cfg *config.Config, engine Engine, logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Compressor{
		cfg:     cfg,
		engine:  engine,
		logger:  logging.NewComponentLogger(logger, "compress"),
		sampler: logging.NewProgressSampler(10),
	}
}

// Threshold below which compression is skipped entirely.
func (c *Compressor) threshold() int64 { return c.cfg.BodyLimitBytes() }

func (c *Compressor) ceiling() int64 { return c.cfg.TargetCeilingBytes() }

// Compress runs ladder passes until the payload fits the target
// ceiling. Only videos are compressed; images and small files pass
// through untouched. Engine failure is absorbed: the result then
// carries the original path with FellBack set.
func (c *Compressor) Compress(ctx context.Context, input Source, opts Options) (Result, error) {
	passthrough := Result{Path: input.Path, SizeBytes: input.SizeBytes, Rung: "none"}
	if input.MediaType != asset.MediaVideo || input.SizeBytes <= c.threshold() {
		return passthrough, nil
	}
	if c.engine == nil || !c.engine.Available() {
		c.logger.Warn("encoder unavailable, uploading original",
			logging.String("input", input.Path))
		passthrough.FellBack = true
		return passthrough, nil
	}

	duration := c.probeDuration(ctx, input.Path)
	rung := StartRung(input.SizeBytes)

	current := input.Path
	currentSize := input.SizeBytes
	passes := 0

	for {
		if err := ctx.Err(); err != nil {
			c.cleanupIntermediate(current, input.Path)
			return Result{}, services.Wrap(services.ErrCancelled, "compress", "encode", "compression cancelled", err)
		}

		output, err := c.encodePass(ctx, current, rung, duration, passes, opts)
		if err != nil {
			if ctx.Err() != nil {
				c.cleanupIntermediate(current, input.Path)
				return Result{}, services.Wrap(services.ErrCancelled, "compress", "encode", "compression cancelled", ctx.Err())
			}
			// Soft failure: the original still uploads.
			c.logger.Warn("compression pass failed, uploading original",
				logging.String("rung", rung.Name),
				logging.Error(err))
			c.cleanupIntermediate(current, input.Path)
			passthrough.FellBack = true
			return passthrough, nil
		}
		passes++

		outSize, err := fileutil.FileSize(output)
		if err != nil {
			c.cleanupIntermediate(current, input.Path)
			os.Remove(output)
			passthrough.FellBack = true
			return passthrough, nil
		}

		c.logger.Info("compression pass complete",
			logging.String("rung", rung.Name),
			logging.Int("pass", passes),
			logging.Int64("in_bytes", currentSize),
			logging.Int64("out_bytes", outSize))

		// A pass that grows the file cannot help; neither can any rung
		// below it on a recursed input.
		if outSize >= currentSize {
			os.Remove(output)
			c.cleanupIntermediate(current, input.Path)
			if currentSize == input.SizeBytes {
				passthrough.FellBack = true
				return passthrough, nil
			}
			return Result{Path: current, SizeBytes: currentSize, Passes: passes - 1, Rung: rung.Name}, nil
		}

		c.cleanupIntermediate(current, input.Path)
		current = output
		currentSize = outSize

		if currentSize <= c.ceiling() {
			return Result{Path: current, SizeBytes: currentSize, Passes: passes, Rung: rung.Name}, nil
		}
		next, ok := NextRung(rung)
		if !ok {
			// Floor rung still over the ceiling. The transport layer
			// owns the hard limit, so hand the best effort upward.
			return Result{Path: current, SizeBytes: currentSize, Passes: passes, Rung: rung.Name}, nil
		}
		rung = next
	}
}

func (c *Compressor) encodePass(ctx context.Context, input string, rung Rung, duration float64, pass int, opts Options) (string, error) {
	dir := c.cfg.Paths.StagingDir
	if dir == "" {
		dir = os.TempDir()
	}
	output := filepath.Join(dir, fmt.Sprintf("compress-%s-p%d-%s.mp4", rung.Name, pass, filepath.Base(input)))
	output, err := fileutil.UniquePath(output)
	if err != nil {
		return "", err
	}

	req := EncodeRequest{
		InputPath:       input,
		OutputPath:      output,
		Rung:            rung,
		DurationSeconds: duration,
		OnProgress: func(percent float64) {
			if opts.OnProgress != nil {
				opts.OnProgress(percent)
			}
			if c.sampler.ShouldLog(percent, rung.Name) {
				c.logger.Info("compressing",
					logging.String("rung", rung.Name),
					logging.Float64("percent", percent))
			}
		},
	}
	if err := c.engine.Encode(ctx, req); err != nil {
		os.Remove(output)
		return "", err
	}
	return output, nil
}

func (c *Compressor) probeDuration(ctx context.Context, path string) float64 {
	binary := c.cfg.Compression.FFprobeBinary
	if binary == "" {
		return 0
	}
	result, err := ffprobe.Inspect(ctx, binary, path)
	if err != nil {
		return 0
	}
	return result.DurationSeconds()
}

// cleanupIntermediate removes a pass output that is no longer needed,
// never the caller's original file.
func (c *Compressor) cleanupIntermediate(path, original string) {
	if path != original {
		os.Remove(path)
	}
}

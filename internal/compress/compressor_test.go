package compress_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"loft/internal/asset"
	"loft/internal/compress"
	"loft/internal/testsupport"
)

// fakeEngine writes outputs whose size follows a script, one entry per
// pass, expressed as a fraction of the input size.
type fakeEngine struct {
	t         *testing.T
	ratios    []float64
	failAfter int
	err       error

	passes []compress.Rung
}

func (f *fakeEngine) Available() bool { return true }

func (f *fakeEngine) Encode(ctx context.Context, req compress.EncodeRequest) error {
	if f.err != nil && len(f.passes) >= f.failAfter {
		return f.err
	}
	f.passes = append(f.passes, req.Rung)

	inSize := fileSize(f.t, req.InputPath)
	ratio := 0.5
	if len(f.passes)-1 < len(f.ratios) {
		ratio = f.ratios[len(f.passes)-1]
	}
	if req.OnProgress != nil {
		req.OnProgress(50)
		req.OnProgress(100)
	}
	testsupport.WriteFile(f.t, req.OutputPath, int64(float64(inSize)*ratio))
	return nil
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Size()
}

func videoSource(t *testing.T, sizeBytes int64) compress.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.mp4")
	testsupport.WriteFile(t, path, sizeBytes)
	return compress.Source{Path: path, SizeBytes: sizeBytes, MediaType: asset.MediaVideo}
}

func TestCompressPassthroughSmallInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := &fakeEngine{t: t}
	c := compress.New(cfg, engine, nil)

	src := videoSource(t, 1<<20)
	result, err := c.Compress(t.Context(), src, compress.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Path != src.Path || result.FellBack || result.Passes != 0 {
		t.Fatalf("small input should pass through: %+v", result)
	}
	if len(engine.passes) != 0 {
		t.Fatal("engine should not run for small inputs")
	}
}

func TestCompressPassthroughImages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	c := compress.New(cfg, &fakeEngine{t: t}, nil)

	path := filepath.Join(t.TempDir(), "big.jpg")
	testsupport.WriteFile(t, path, 10<<20)
	src := compress.Source{Path: path, SizeBytes: 10 << 20, MediaType: asset.MediaImage}

	result, err := c.Compress(t.Context(), src, compress.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Path != path || result.FellBack {
		t.Fatalf("images should pass through: %+v", result)
	}
}

func TestCompressSinglePassConverges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := &fakeEngine{t: t, ratios: []float64{0.3}}
	c := compress.New(cfg, engine, nil)

	cfg.Compression.TargetCeilingMiB = 8

	var progress []float64
	src := videoSource(t, 20<<20)
	result, err := c.Compress(t.Context(), src, compress.Options{
		OnProgress: func(p float64) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.FellBack || result.Passes != 1 || result.Rung != "medium" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.SizeBytes >= src.SizeBytes {
		t.Fatalf("output should shrink: %d -> %d", src.SizeBytes, result.SizeBytes)
	}
	if len(progress) == 0 {
		t.Fatal("progress callback never fired")
	}
}

func TestCompressRecursesOnCompressedOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Compression.TargetCeilingMiB = 8
	// First pass lands above the ceiling, second brings it under.
	engine := &fakeEngine{t: t, ratios: []float64{0.5, 0.3}}
	c := compress.New(cfg, engine, nil)

	src := videoSource(t, 20<<20)
	result, err := c.Compress(t.Context(), src, compress.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Passes != 2 {
		t.Fatalf("expected two passes, got %+v", result)
	}
	if len(engine.passes) != 2 || engine.passes[0].Name != "medium" || engine.passes[1].Name != "low" {
		t.Fatalf("ladder should descend medium then low: %+v", engine.passes)
	}
	if result.SizeBytes > cfg.TargetCeilingBytes() {
		t.Fatalf("result still over ceiling: %d", result.SizeBytes)
	}
}

func TestCompressFallsBackOnEngineError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := &fakeEngine{t: t, err: errors.New("encoder exploded"), failAfter: 0}
	c := compress.New(cfg, engine, nil)

	src := videoSource(t, 20<<20)
	result, err := c.Compress(t.Context(), src, compress.Options{})
	if err != nil {
		t.Fatalf("engine errors must be absorbed: %v", err)
	}
	if !result.FellBack || result.Path != src.Path {
		t.Fatalf("fallback should return the original: %+v", result)
	}
}

func TestCompressKeepsBestEffortWhenOutputGrows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Compression.TargetCeilingMiB = 1
	// Second pass grows the file; the first pass output is the best we have.
	engine := &fakeEngine{t: t, ratios: []float64{0.5, 1.5}}
	c := compress.New(cfg, engine, nil)

	src := videoSource(t, 20<<20)
	result, err := c.Compress(t.Context(), src, compress.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.FellBack {
		t.Fatalf("a shrinking first pass should be kept: %+v", result)
	}
	if result.SizeBytes != 10<<20 {
		t.Fatalf("expected the first pass output, got %d bytes", result.SizeBytes)
	}
}

func TestCompressUnavailableEngineFallsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	c := compress.New(cfg, nil, nil)

	src := videoSource(t, 20<<20)
	result, err := c.Compress(t.Context(), src, compress.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.FellBack || result.Path != src.Path {
		t.Fatalf("missing engine should fall back: %+v", result)
	}
}

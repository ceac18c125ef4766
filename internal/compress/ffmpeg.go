package compress

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegEngine shells out to ffmpeg for real encodes.
type FFmpegEngine struct {
	binary string
}

func NewFFmpegEngine(binary string) *FFmpegEngine {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEngine{binary: binary}
}

func (e *FFmpegEngine) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Encode runs one ffmpeg pass. The scale filter only ever downsizes;
// -2 keeps the height even, which libx264 requires.
func (e *FFmpegEngine) Encode(ctx context.Context, req EncodeRequest) error {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", req.InputPath,
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", req.Rung.MaxWidth),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(req.Rung.CRF),
		"-preset", req.Rung.Preset,
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-loglevel", "error",
		req.OutputPath,
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	e.consumeProgress(stdout, req)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, detail)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	if req.OnProgress != nil {
		req.OnProgress(100)
	}
	return nil
}

// consumeProgress reads the key=value stream ffmpeg writes under
// -progress and converts out_time into a percentage.
func (e *FFmpegEngine) consumeProgress(r io.Reader, req EncodeRequest) {
	scanner := bufio.NewScanner(r)
	var last float64
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok || key != "out_time_us" {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || req.DurationSeconds <= 0 || req.OnProgress == nil {
			continue
		}
		percent := float64(us) / 1e6 / req.DurationSeconds * 100
		if percent > 100 {
			percent = 100
		}
		// Progress never moves backwards even if ffmpeg's clock does.
		if percent > last {
			last = percent
			req.OnProgress(percent)
		}
	}
}

package ffprobe

import (
	"encoding/json"
	"testing"
)

const sampleOutput = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "duration": "12.5"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio"}
  ],
  "format": {"filename": "clip.mp4", "duration": "12.600000", "size": "1048576", "format_name": "mov,mp4,m4a"}
}`

func TestResultAccessors(t *testing.T) {
	var result Result
	if err := json.Unmarshal([]byte(sampleOutput), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.HasVideo() {
		t.Fatal("expected a video stream")
	}
	if d := result.DurationSeconds(); d != 12.6 {
		t.Fatalf("unexpected duration: %v", d)
	}
	w, h := result.Dimensions()
	if w != 1920 || h != 1080 {
		t.Fatalf("unexpected dimensions: %dx%d", w, h)
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", Duration: "7.25"}},
	}
	if d := result.DurationSeconds(); d != 7.25 {
		t.Fatalf("unexpected duration: %v", d)
	}
}

func TestNoVideo(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "audio"}}}
	if result.HasVideo() {
		t.Fatal("audio-only container should not report video")
	}
	if w, h := result.Dimensions(); w != 0 || h != 0 {
		t.Fatalf("unexpected dimensions: %dx%d", w, h)
	}
}

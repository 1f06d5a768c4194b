package media

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseProbe(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"programs":[],"streams":[{"width":1280,"height":720}],"format":{"duration":"93.600000"}}`)
	got, err := parseProbe(raw)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if got != (VideoInfo{Duration: 94, Width: 1280, Height: 720}) {
		t.Fatalf("parseProbe() = %+v", got)
	}

	got, err = parseProbe([]byte(`{"streams":[],"format":{}}`))
	if err != nil || got != defaultVideoInfo {
		t.Fatalf("parseProbe(empty) = %+v, %v", got, err)
	}
}

func TestTimestamp(t *testing.T) {
	t.Parallel()
	for in, want := range map[int]string{0: "00:00:00", 61: "00:01:01", 3725: "01:02:05", -4: "00:00:00"} {
		if got := timestamp(in); got != want {
			t.Fatalf("timestamp(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestVideoMetadataFallsBackWhenProbeMissing(t *testing.T) {
	t.Parallel()
	mp := NewMediaProcessor("/nonexistent/ffprobe", "/nonexistent/ffmpeg", 2, zerolog.Nop())
	if got := mp.VideoMetadata(context.Background(), "whatever.mp4"); got != defaultVideoInfo {
		t.Fatalf("VideoMetadata() = %+v", got)
	}
	if err := mp.Screenshot(context.Background(), "whatever.mp4", 10, "out.jpg"); err == nil {
		t.Fatalf("Screenshot() with missing ffmpeg must fail")
	}
}

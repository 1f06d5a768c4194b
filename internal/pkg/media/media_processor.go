package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// VideoInfo - длительность в секундах и размеры кадра.
type VideoInfo struct {
	Duration int
	Width    int
	Height   int
}

var defaultVideoInfo = VideoInfo{Duration: 1, Width: 1, Height: 1}

// MediaProcessor запускает ffprobe/ffmpeg в ограниченном пуле, чтобы
// разбор видео не занимал все ядра при параллельных пакетах.
type MediaProcessor struct {
	ffprobe string
	ffmpeg  string
	sem     *semaphore.Weighted
	timeout time.Duration
	log     zerolog.Logger
}

func NewMediaProcessor(ffprobe, ffmpeg string, workers int, log zerolog.Logger) *MediaProcessor {
	if workers <= 0 {
		workers = 1
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &MediaProcessor{
		ffprobe: ffprobe,
		ffmpeg:  ffmpeg,
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: 2 * time.Minute,
		log:     log.With().Str("component", "media").Logger(),
	}
}

func (mp *MediaProcessor) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := mp.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer mp.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, mp.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// VideoMetadata читает длительность и размеры; при ошибке возвращает 1/1/1.
func (mp *MediaProcessor) VideoMetadata(ctx context.Context, path string) VideoInfo {
	out, err := mp.run(ctx, mp.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		mp.log.Warn().Err(err).Str("path", path).Msg("ffprobe failed")
		return defaultVideoInfo
	}
	info, err := parseProbe(out)
	if err != nil {
		mp.log.Warn().Err(err).Str("path", path).Msg("unexpected ffprobe output")
		return defaultVideoInfo
	}
	return info
}

// Screenshot сохраняет кадр из середины видео в out.
func (mp *MediaProcessor) Screenshot(ctx context.Context, path string, duration int, out string) error {
	_, err := mp.run(ctx, mp.ffmpeg,
		"-y",
		"-ss", timestamp(duration/2),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		out,
	)
	return err
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(raw []byte) (VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return VideoInfo{}, err
	}
	info := defaultVideoInfo
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && d > 0 {
		info.Duration = int(math.Round(d))
		if info.Duration == 0 {
			info.Duration = 1
		}
	}
	if len(out.Streams) > 0 {
		if out.Streams[0].Width > 0 {
			info.Width = out.Streams[0].Width
		}
		if out.Streams[0].Height > 0 {
			info.Height = out.Streams[0].Height
		}
	}
	return info, nil
}

func timestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

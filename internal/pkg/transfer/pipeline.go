package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/media"
	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/preferences"
	"media_relay_bot/internal/pkg/resolve"
)

// DefaultSizeLimit - потолок обычной загрузки, 2 GiB включительно.
const DefaultSizeLimit int64 = 2 << 30

var ErrTooLarge = errors.New("file is above the upload limit and no overflow session is available")

// Notifier показывает пользователю статус передачи.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) (int, error)
	Edit(ctx context.Context, chatID int64, msgID int, text string) error
	Delete(ctx context.Context, chatID int64, msgID int) error
}

// OverflowSource выдает общий Overflow-клиент в монопольное пользование.
type OverflowSource interface {
	AcquireOverflow(ctx context.Context) (platform.Client, func(), error)
}

type VideoProber interface {
	VideoMetadata(ctx context.Context, path string) media.VideoInfo
	Screenshot(ctx context.Context, path string, duration int, out string) error
}

type PreferenceLoader interface {
	Load(ctx context.Context, userID int64) (*preferences.UserPreferences, error)
}

type Config struct {
	TempDir     string
	SizeLimit   int64
	StagingChat int64
}

type Pipeline struct {
	cfg      Config
	prefs    PreferenceLoader
	notifier Notifier
	overflow OverflowSource
	prober   VideoProber
	log      zerolog.Logger
	now      func() time.Time
}

func NewPipeline(cfg Config, prefs PreferenceLoader, notifier Notifier, overflow OverflowSource, prober VideoProber, log zerolog.Logger) *Pipeline {
	if cfg.SizeLimit <= 0 {
		cfg.SizeLimit = DefaultSizeLimit
	}
	return &Pipeline{
		cfg:      cfg,
		prefs:    prefs,
		notifier: notifier,
		overflow: overflow,
		prober:   prober,
		log:      log.With().Str("component", "transfer").Logger(),
		now:      time.Now,
	}
}

// Request - одна передача: разрешенное сообщение и Relay-клиент владельца.
type Request struct {
	UserID     int64
	Relay      platform.Client
	Resolution *resolve.Resolution
}

func (p *Pipeline) Transfer(ctx context.Context, req Request) Outcome {
	prefs, err := p.prefs.Load(ctx, req.UserID)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Err: err}
	}
	dest := platform.Destination{Chat: platform.ChatID(req.UserID)}
	if prefs.Destination != nil {
		dest = *prefs.Destination
	}

	msg := req.Resolution.Message
	if !msg.HasMedia() {
		if msg.Text == "" {
			return Outcome{Kind: OutcomeSkippedNotFound, Err: platform.ErrNotFound}
		}
		if _, err := req.Relay.SendText(ctx, dest, msg.Text); err != nil {
			return Classify(err)
		}
		return Outcome{Kind: OutcomeSent}
	}

	caption := ComposeCaption(ProcessText(msg.Caption, prefs), prefs.Caption)

	if req.Resolution.Direct {
		_, err := req.Relay.SendStored(ctx, dest, msg, caption)
		if err == nil {
			return Outcome{Kind: OutcomeSent, Note: "sent directly"}
		}
		if platform.KindOf(err) == platform.KindRateLimited {
			return Classify(err)
		}
		p.log.Warn().Err(err).Int64("user_id", req.UserID).Msg("direct relay failed, falling back to download")
	}

	return p.downloadAndUpload(ctx, req, dest, prefs, caption)
}

func (p *Pipeline) downloadAndUpload(ctx context.Context, req Request, dest platform.Destination, prefs *preferences.UserPreferences, caption string) Outcome {
	log := p.log.With().Int64("user_id", req.UserID).Int("message_id", req.Resolution.Message.ID).Logger()
	msg := req.Resolution.Message
	status := p.openStatus(ctx, req.UserID, "Downloading…")

	dir := filepath.Join(p.cfg.TempDir, strconv.FormatInt(req.UserID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		status.fail(ctx, "Download failed.")
		return Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("create temp dir: %w", err)}
	}

	path := filepath.Join(dir, p.localName(msg.Media))
	var cleanup []string
	defer func() {
		for _, f := range append(cleanup, path) {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("path", f).Msg("temp file cleanup failed")
			}
		}
	}()

	down := newProgressReporter("Downloading…", p.now, status.render(ctx))
	if err := req.Resolution.Source.Download(ctx, msg, path, down.Update); err != nil {
		status.fail(ctx, "Download failed.")
		return Classify(err)
	}

	if msg.Media.FileName != "" {
		status.set(ctx, "Renaming…")
		renamed, err := RenameFile(path, prefs)
		if err != nil {
			log.Warn().Err(err).Msg("rename failed, keeping original name")
		}
		path = renamed
	}

	info, err := os.Stat(path)
	if err != nil {
		status.fail(ctx, "Download failed.")
		return Outcome{Kind: OutcomeFailed, Err: err}
	}

	upload := platform.UploadRequest{
		Kind:      uploadKind(msg.Media, path),
		Path:      path,
		FileName:  filepath.Base(path),
		Caption:   caption,
		Performer: msg.Media.Performer,
		Title:     msg.Media.Title,
	}
	p.describe(ctx, &upload, prefs, &cleanup)

	var outcome Outcome
	if overflowRequired(info.Size(), p.cfg.SizeLimit) {
		outcome = p.viaOverflow(ctx, req, dest, upload, status)
	} else {
		status.set(ctx, "Uploading…")
		upload.Progress = newProgressReporter("Uploading…", p.now, status.render(ctx)).Update
		if _, err := req.Relay.Upload(ctx, dest, upload); err != nil {
			outcome = Classify(err)
		} else {
			outcome = Outcome{Kind: OutcomeUploaded}
		}
	}

	if outcome.Success() {
		status.done(ctx)
	} else {
		status.fail(ctx, "Upload failed: "+outcome.StatusLine())
	}
	return outcome
}

const stagingDialogPage = 200

func (p *Pipeline) viaOverflow(ctx context.Context, req Request, dest platform.Destination, upload platform.UploadRequest, status *statusMessage) Outcome {
	if p.overflow == nil || p.cfg.StagingChat == 0 {
		return Outcome{Kind: OutcomeFailed, Err: ErrTooLarge}
	}
	client, release, err := p.overflow.AcquireOverflow(ctx)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("%w: %v", ErrTooLarge, err)}
	}
	defer release()

	status.set(ctx, "File is larger than 2 GB, switching to the overflow uploader…")
	staging := platform.Destination{Chat: platform.ChatID(p.cfg.StagingChat)}
	upload.Progress = newProgressReporter("Uploading…", p.now, status.render(ctx)).Update

	stagedID, err := client.Upload(ctx, staging, upload)
	if platform.KindOf(err) == platform.KindNotFound {
		// промежуточный чат мог еще не попасть в кэш диалогов
		if rerr := client.RefreshDialogs(ctx, stagingDialogPage); rerr != nil {
			p.log.Warn().Err(rerr).Msg("overflow dialog refresh failed")
		}
		stagedID, err = client.Upload(ctx, staging, upload)
	}
	if err != nil {
		return Classify(err)
	}
	_, copyErr := req.Relay.Copy(ctx, dest, staging.Chat, stagedID)
	if err := client.Delete(ctx, staging.Chat, stagedID); err != nil {
		p.log.Warn().Err(err).Int("staged_id", stagedID).Msg("staging copy was not deleted")
	}
	if copyErr != nil {
		return Classify(copyErr)
	}
	return Outcome{Kind: OutcomeUploaded, Note: "done (large file)"}
}

// describe заполняет длительность, размеры и превью для видео и аудио.
func (p *Pipeline) describe(ctx context.Context, upload *platform.UploadRequest, prefs *preferences.UserPreferences, cleanup *[]string) {
	switch upload.Kind {
	case platform.MediaVideo:
		info := p.prober.VideoMetadata(ctx, upload.Path)
		upload.Duration, upload.Width, upload.Height = info.Duration, info.Width, info.Height
		if prefs.Thumbnail != "" {
			upload.Thumb = prefs.Thumbnail
			return
		}
		shot := upload.Path + ".jpg"
		if err := p.prober.Screenshot(ctx, upload.Path, info.Duration, shot); err != nil {
			p.log.Debug().Err(err).Msg("thumbnail was not generated")
			return
		}
		*cleanup = append(*cleanup, shot)
		upload.Thumb = shot
	case platform.MediaAudio:
		upload.Thumb = prefs.Thumbnail
	}
}

func (p *Pipeline) localName(m *platform.Media) string {
	if m.FileName != "" {
		if name := Sanitize(m.FileName); name != "" {
			return name
		}
	}
	stamp := strconv.FormatInt(p.now().UnixNano(), 10)
	switch m.Kind {
	case platform.MediaVideo, platform.MediaVideoNote:
		return stamp + ".mp4"
	case platform.MediaAudio:
		return stamp + ".mp3"
	case platform.MediaPhoto:
		return stamp + ".jpg"
	case platform.MediaVoice:
		return stamp + ".ogg"
	case platform.MediaSticker:
		return stamp + ".webp"
	default:
		return stamp
	}
}

func uploadKind(m *platform.Media, path string) platform.MediaKind {
	ext := extension(path)
	switch {
	case m.Kind == platform.MediaVideo, m.Kind == platform.MediaDocument && videoExtensions[ext]:
		return platform.MediaVideo
	case m.Kind == platform.MediaVideoNote, m.Kind == platform.MediaVoice, m.Kind == platform.MediaSticker:
		return m.Kind
	case m.Kind == platform.MediaAudio, m.Kind == platform.MediaDocument && audioExtensions[ext]:
		return platform.MediaAudio
	case m.Kind == platform.MediaPhoto:
		return platform.MediaPhoto
	default:
		return platform.MediaDocument
	}
}

func overflowRequired(size, limit int64) bool {
	return size > limit
}

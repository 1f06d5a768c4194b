package botapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/platform"
)

const (
	DefaultAPIEndpoint  = tgbotapi.APIEndpoint
	DefaultFileEndpoint = "https://api.telegram.org/file/bot%s/%s"
)

type Config struct {
	APIEndpoint  string
	FileEndpoint string
	HTTPClient   tgbotapi.HTTPClient
}

// FileRef - ссылка на файл внутри Bot API, кладется в Media.Handle.
type FileRef struct {
	FileID string
}

// Client - Relay поверх Bot API. Bot API не умеет читать сообщение по id,
// поэтому GetMessage пересылает его в служебный чат (чат владельца с ботом),
// читает копию и удаляет ее.
type Client struct {
	api     *tgbotapi.BotAPI
	cfg     Config
	role    platform.Role
	scratch int64
	log     zerolog.Logger
}

// New проверяет токен через getMe.
func New(ctx context.Context, token string, scratchChat int64, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = DefaultAPIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = DefaultFileEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	type result struct {
		api *tgbotapi.BotAPI
		err error
	}
	done := make(chan result, 1)
	go func() {
		api, err := tgbotapi.NewBotAPIWithClient(token, cfg.APIEndpoint, cfg.HTTPClient)
		done <- result{api, err}
	}()
	select {
	case <-ctx.Done():
		return nil, platform.Wrap(platform.KindTransient, "connect relay", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, classify("connect relay", r.err)
		}
		return &Client{
			api:     r.api,
			cfg:     cfg,
			role:    platform.RoleRelay,
			scratch: scratchChat,
			log:     log.With().Str("component", "botapi").Str("bot", r.api.Self.UserName).Logger(),
		}, nil
	}
}

func (c *Client) Role() platform.Role { return c.role }
func (c *Client) Name() string        { return "@" + c.api.Self.UserName }

// API отдает низкоуровневый клиент для командного бота.
func (c *Client) API() *tgbotapi.BotAPI { return c.api }

func (c *Client) GetMessage(ctx context.Context, chat platform.ChatRef, id int) (*platform.Message, error) {
	if c.scratch == 0 {
		return nil, platform.Wrap(platform.KindConfigurationMissing, "get_message", errors.New("no scratch chat for message lookup"))
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", c.scratch)
	params["from_chat_id"] = chatParam(chat)
	params.AddNonZero("message_id", id)
	params.AddBool("disable_notification", true)

	resp, err := c.api.MakeRequest("forwardMessage", params)
	if err != nil {
		return nil, classify("get_message", err)
	}
	var fwd tgbotapi.Message
	if err := jsonUnmarshal(resp.Result, &fwd); err != nil {
		return nil, platform.Wrap(platform.KindFatal, "get_message", err)
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(c.scratch, fwd.MessageID)); err != nil {
		c.log.Debug().Err(err).Int("message_id", fwd.MessageID).Msg("scratch copy not deleted")
	}

	msg := convertMessage(&fwd)
	msg.ID = id
	msg.Chat = chat
	return msg, nil
}

func (c *Client) JoinChat(context.Context, platform.ChatRef) error {
	return platform.Wrap(platform.KindForbidden, "join", platform.ErrUnsupported)
}

func (c *Client) RefreshDialogs(context.Context, int) error { return nil }

func (c *Client) SendText(_ context.Context, dest platform.Destination, text string) (int, error) {
	msg := tgbotapi.MessageConfig{BaseChat: baseChat(dest), Text: text}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, classify("send_text", err)
	}
	return sent.MessageID, nil
}

func (c *Client) EditText(_ context.Context, chat platform.ChatRef, id int, text string) error {
	cfg := tgbotapi.EditMessageTextConfig{
		BaseEdit: tgbotapi.BaseEdit{ChatID: chat.ID, ChannelUsername: usernameParam(chat), MessageID: id},
		Text:     text,
	}
	if _, err := c.api.Request(cfg); err != nil {
		return classify("edit_text", err)
	}
	return nil
}

// SendStored - прямая пересылка без скачивания через copyMessage.
func (c *Client) SendStored(ctx context.Context, dest platform.Destination, msg *platform.Message, caption string) (int, error) {
	cfg := tgbotapi.CopyMessageConfig{
		BaseChat:            baseChat(dest),
		FromChatID:          msg.Chat.ID,
		FromChannelUsername: usernameParam(msg.Chat),
		MessageID:           msg.ID,
		Caption:             caption,
	}
	id, err := c.api.CopyMessage(cfg)
	if err != nil {
		return 0, classify("send_stored", err)
	}
	return id.MessageID, nil
}

func (c *Client) Copy(ctx context.Context, dest platform.Destination, from platform.ChatRef, id int) (int, error) {
	cfg := tgbotapi.CopyMessageConfig{
		BaseChat:            baseChat(dest),
		FromChatID:          from.ID,
		FromChannelUsername: usernameParam(from),
		MessageID:           id,
	}
	out, err := c.api.CopyMessage(cfg)
	if err != nil {
		return 0, classify("copy", err)
	}
	return out.MessageID, nil
}

func (c *Client) Delete(_ context.Context, chat platform.ChatRef, ids ...int) error {
	var firstErr error
	for _, id := range ids {
		cfg := tgbotapi.DeleteMessageConfig{ChatID: chat.ID, ChannelUsername: usernameParam(chat), MessageID: id}
		if _, err := c.api.Request(cfg); err != nil {
			err = classify("delete", err)
			if platform.KindOf(err) != platform.KindNotFound && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Client) Download(ctx context.Context, msg *platform.Message, path string, progress platform.ProgressFunc) error {
	if !msg.HasMedia() {
		return platform.Wrap(platform.KindNotFound, "download", errors.New("message has no media"))
	}
	ref, ok := msg.Media.Handle.(FileRef)
	if !ok || ref.FileID == "" {
		return platform.Wrap(platform.KindFatal, "download", platform.ErrUnsupported)
	}
	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: ref.FileID})
	if err != nil {
		return classify("download", err)
	}

	link := fmt.Sprintf(c.cfg.FileEndpoint, c.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return platform.Wrap(platform.KindFatal, "download", err)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return platform.Wrap(platform.KindTransient, "download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		kind := platform.KindFatal
		if resp.StatusCode == http.StatusNotFound {
			kind = platform.KindNotFound
		}
		return platform.Wrap(kind, "download", fmt.Errorf("file endpoint status %d", resp.StatusCode))
	}

	total := resp.ContentLength
	if total <= 0 {
		total = msg.Media.Size
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return platform.Wrap(platform.KindFatal, "download", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return platform.Wrap(platform.KindFatal, "download", err)
	}
	_, err = io.Copy(out, &progressReader{r: resp.Body, total: total, fn: progress})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return platform.Wrap(platform.KindTransient, "download", err)
	}
	return nil
}

func (c *Client) Upload(_ context.Context, dest platform.Destination, req platform.UploadRequest) (int, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return 0, platform.Wrap(platform.KindFatal, "upload", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, platform.Wrap(platform.KindFatal, "upload", err)
	}
	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}
	file := tgbotapi.FileReader{Name: name, Reader: &progressReader{r: f, closer: f, total: info.Size(), fn: req.Progress}}

	var thumb tgbotapi.RequestFileData
	if req.Thumb != "" {
		thumb = tgbotapi.FilePath(req.Thumb)
	}

	base := tgbotapi.BaseFile{BaseChat: baseChat(dest), File: file}
	var chattable tgbotapi.Chattable
	switch req.Kind {
	case platform.MediaVideo:
		chattable = tgbotapi.VideoConfig{BaseFile: base, Thumb: thumb, Duration: req.Duration, Caption: req.Caption, SupportsStreaming: true}
	case platform.MediaAudio:
		chattable = tgbotapi.AudioConfig{BaseFile: base, Thumb: thumb, Duration: req.Duration, Caption: req.Caption, Performer: req.Performer, Title: req.Title}
	case platform.MediaPhoto:
		chattable = tgbotapi.PhotoConfig{BaseFile: base, Caption: req.Caption}
	case platform.MediaVoice:
		chattable = tgbotapi.VoiceConfig{BaseFile: base, Duration: req.Duration, Caption: req.Caption}
	case platform.MediaVideoNote:
		chattable = tgbotapi.VideoNoteConfig{BaseFile: base, Duration: req.Duration, Length: req.Width}
	case platform.MediaSticker:
		chattable = tgbotapi.StickerConfig{BaseFile: base}
	default:
		chattable = tgbotapi.DocumentConfig{BaseFile: base, Thumb: thumb, Caption: req.Caption}
	}

	sent, err := c.api.Send(chattable)
	if err != nil {
		return 0, classify("upload", err)
	}
	return sent.MessageID, nil
}

func (c *Client) Ping(context.Context) error {
	if _, err := c.api.GetMe(); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (c *Client) Close(context.Context) error {
	return nil
}

func baseChat(dest platform.Destination) tgbotapi.BaseChat {
	return tgbotapi.BaseChat{
		ChatID:                   dest.Chat.ID,
		ChannelUsername:          usernameParam(dest.Chat),
		ReplyToMessageID:         dest.ReplyTo,
		AllowSendingWithoutReply: dest.ReplyTo != 0,
	}
}

func usernameParam(chat platform.ChatRef) string {
	if chat.Username == "" {
		return ""
	}
	return "@" + chat.Username
}

func chatParam(chat platform.ChatRef) string {
	if chat.Username != "" {
		return "@" + chat.Username
	}
	return strconv.FormatInt(chat.ID, 10)
}

package botapi

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/mock-api/handlers"
	"media_relay_bot/internal/pkg/mock-api/models"
	"media_relay_bot/internal/pkg/platform"
)

const (
	testToken   = "42:abc"
	scratchChat = int64(500)
)

func newTestClient(t *testing.T) (*Client, *handlers.Server) {
	t.Helper()
	srv := handlers.NewServer()
	srv.AddBot(testToken, tgbotapi.User{ID: 42, UserName: "relay_bot"})
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	c, err := New(context.Background(), testToken, scratchChat, Config{
		APIEndpoint:  hs.URL + "/bot%s/%s",
		FileEndpoint: hs.URL + "/file/bot%s/%s",
		HTTPClient:   hs.Client(),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func TestNewRejectsUnknownToken(t *testing.T) {
	t.Parallel()

	srv := handlers.NewServer()
	hs := httptest.NewServer(srv)
	defer hs.Close()

	_, err := New(context.Background(), "1:bad", scratchChat, Config{APIEndpoint: hs.URL + "/bot%s/%s", HTTPClient: hs.Client()}, zerolog.Nop())
	if platform.KindOf(err) != platform.KindConfigurationMissing {
		t.Fatalf("New() error kind = %v, want configuration missing (%v)", platform.KindOf(err), err)
	}
}

func TestClientIdentity(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	if c.Role() != platform.RoleRelay {
		t.Errorf("Role() = %v", c.Role())
	}
	if c.Name() != "@relay_bot" {
		t.Errorf("Name() = %q", c.Name())
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestGetMessageReadsAndCleansScratch(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t)
	fileID := srv.AddFile("clip.mp4", []byte("video-bytes"))
	srv.Seed("@channelx", tgbotapi.Message{
		MessageID: 1000,
		Caption:   "hello",
		Video:     &tgbotapi.Video{FileID: fileID, FileName: "clip.mp4", FileSize: 11, Duration: 7, Width: 640, Height: 360},
	})

	msg, err := c.GetMessage(context.Background(), platform.ChatUsername("channelx"), 1000)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if msg.ID != 1000 || msg.Chat.Username != "channelx" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Caption != "hello" || !msg.HasMedia() || msg.Media.Kind != platform.MediaVideo {
		t.Fatalf("media = %+v caption = %q", msg.Media, msg.Caption)
	}
	if msg.Media.Duration != 7 || msg.Media.Width != 640 {
		t.Errorf("video attrs = %+v", msg.Media)
	}
	if ref, ok := msg.Media.Handle.(FileRef); !ok || ref.FileID != fileID {
		t.Errorf("handle = %#v", msg.Media.Handle)
	}
	if left := srv.Messages("500"); len(left) != 0 {
		t.Errorf("scratch chat still has %d messages", len(left))
	}
}

func TestGetMessageMissing(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t)
	srv.Seed("@channelx", tgbotapi.Message{MessageID: 1000, Text: "x"})

	_, err := c.GetMessage(context.Background(), platform.ChatUsername("channelx"), 1002)
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("GetMessage() error = %v, want not found", err)
	}
	_, err = c.GetMessage(context.Background(), platform.ChatUsername("nochat"), 1)
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("GetMessage(unknown chat) error = %v, want not found", err)
	}
}

func TestGetMessageWithoutScratch(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	c.scratch = 0
	_, err := c.GetMessage(context.Background(), platform.ChatUsername("channelx"), 1)
	if !errors.Is(err, platform.ErrConfigurationMissing) {
		t.Fatalf("error = %v", err)
	}
}

func TestSendStoredCopiesWithCaption(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t)
	srv.Seed("@channelx", tgbotapi.Message{MessageID: 1000, Caption: "old", Document: &tgbotapi.Document{FileID: "f"}})
	msg := &platform.Message{ID: 1000, Chat: platform.ChatUsername("channelx")}

	id, err := c.SendStored(context.Background(), platform.Destination{Chat: platform.ChatID(77)}, msg, "new caption")
	if err != nil {
		t.Fatalf("SendStored() error = %v", err)
	}
	got := srv.Messages("77")
	if len(got) != 1 || got[0].MessageID != id || got[0].Caption != "new caption" {
		t.Fatalf("destination = %+v, id %d", got, id)
	}
}

func TestSendAndEditText(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t)
	ctx := context.Background()
	id, err := c.SendText(ctx, platform.Destination{Chat: platform.ChatID(77)}, "⏳ Processing: 0/3")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if err := c.EditText(ctx, platform.ChatID(77), id, "⏳ Processing: 1/3"); err != nil {
		t.Fatalf("EditText() error = %v", err)
	}
	if got := srv.Messages("77"); len(got) != 1 || got[0].Text != "⏳ Processing: 1/3" {
		t.Fatalf("messages = %+v", got)
	}
	if err := c.Delete(ctx, platform.ChatID(77), id, 9999); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := srv.Messages("77"); len(got) != 0 {
		t.Fatalf("messages after delete = %+v", got)
	}
}

func TestDownloadAndUpload(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t)
	ctx := context.Background()
	content := []byte("0123456789abcdef")
	fileID := srv.AddFile("report.pdf", content)
	msg := &platform.Message{ID: 5, Media: &platform.Media{Kind: platform.MediaDocument, FileName: "report.pdf", Size: int64(len(content)), Handle: FileRef{fileID}}}

	path := filepath.Join(t.TempDir(), "77", "report.pdf")
	var last int64
	if err := c.Download(ctx, msg, path, func(done, total int64) { last = done }); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != string(content) {
		t.Fatalf("downloaded %q, %v", data, err)
	}
	if last != int64(len(content)) {
		t.Errorf("progress done = %d", last)
	}

	id, err := c.Upload(ctx, platform.Destination{Chat: platform.ChatID(77)}, platform.UploadRequest{
		Kind:     platform.MediaDocument,
		Path:     path,
		FileName: "renamed.pdf",
		Caption:  "cap",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	got := srv.Messages("77")
	if len(got) != 1 || got[0].MessageID != id || got[0].Document == nil {
		t.Fatalf("uploaded = %+v", got)
	}
	if got[0].Document.FileName != "renamed.pdf" || got[0].Caption != "cap" {
		t.Errorf("document = %+v caption %q", got[0].Document, got[0].Caption)
	}
	if f, ok := srv.File(got[0].Document.FileID); !ok || string(f.Content) != string(content) {
		t.Errorf("stored file = %+v", f)
	}
}

func TestDownloadWithoutMedia(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	err := c.Download(context.Background(), &platform.Message{ID: 1, Text: "plain"}, filepath.Join(t.TempDir(), "x"), nil)
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("error = %v", err)
	}
}

func TestRateLimitIsClassified(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t)
	srv.FailNext("sendMessage", models.Failure{Code: 429, Description: "Too Many Requests: retry after 12", RetryAfter: 12})

	_, err := c.SendText(context.Background(), platform.Destination{Chat: platform.ChatID(77)}, "x")
	if !errors.Is(err, platform.ErrRateLimited) {
		t.Fatalf("error = %v", err)
	}
	if after, ok := platform.RetryAfterOf(err); !ok || after != 12*time.Second {
		t.Errorf("RetryAfterOf() = %v, %v", after, ok)
	}
}

func TestJoinChatUnsupported(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	err := c.JoinChat(context.Background(), platform.ChatUsername("x"))
	if !errors.Is(err, platform.ErrUnsupported) || !errors.Is(err, platform.ErrForbidden) {
		t.Fatalf("error = %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want platform.Kind
	}{
		{"unauthorized", &tgbotapi.Error{Code: 401, Message: "Unauthorized"}, platform.KindConfigurationMissing},
		{"forbidden", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was kicked"}, platform.KindForbidden},
		{"admin", &tgbotapi.Error{Code: 400, Message: "Bad Request: CHAT_ADMIN_REQUIRED"}, platform.KindForbidden},
		{"protected", &tgbotapi.Error{Code: 400, Message: "Bad Request: message can't be forwarded"}, platform.KindForbidden},
		{"missing", &tgbotapi.Error{Code: 400, Message: "Bad Request: message to forward not found"}, platform.KindNotFound},
		{"bad username", &tgbotapi.Error{Code: 400, Message: "Bad Request: USERNAME_INVALID"}, platform.KindInvalidReference},
		{"server", &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, platform.KindTransient},
		{"flood", &tgbotapi.Error{Message: "flood", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}}, platform.KindRateLimited},
		{"deadline", context.DeadlineExceeded, platform.KindTransient},
		{"other", errors.New("boom"), platform.KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := platform.KindOf(classify("op", tt.err)); got != tt.want {
				t.Errorf("classify() kind = %v, want %v", got, tt.want)
			}
		})
	}
}

package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	batchusecase "media_relay_bot/internal/pkg/batch/usecase"
	"media_relay_bot/internal/pkg/health"
	"media_relay_bot/internal/pkg/mock-api/handlers"
	"media_relay_bot/internal/pkg/preferences"
	sessionusecase "media_relay_bot/internal/pkg/session/usecase"
	"media_relay_bot/internal/pkg/transfer"
)

var (
	_ Sessions                   = (*sessionusecase.Pool)(nil)
	_ Batches                    = (*batchusecase.Engine)(nil)
	_ Preferences                = (*preferences.Service)(nil)
	_ transfer.Notifier          = Notifier{}
	_ health.ConversationSweeper = (*MemoryStorage)(nil)
	_ ReportSource               = (*health.Supervisor)(nil)
)

type staticReport health.Report

func (r staticReport) Last() health.Report { return health.Report(r) }

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status health.Status
		code   int
	}{
		{health.StatusHealthy, http.StatusOK},
		{health.StatusWarning, http.StatusOK},
		{health.StatusUnhealthy, http.StatusServiceUnavailable},
		{health.StatusError, http.StatusServiceUnavailable},
		{"", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		ws := NewWebServer(staticReport{Status: tt.status, Components: []health.Component{{Name: "store", Status: tt.status}}}, ":0", zerolog.Nop())
		rec := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != tt.code {
			t.Errorf("status %q: code = %d, want %d", tt.status, rec.Code, tt.code)
		}
		var got health.Report
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if tt.status != "" && got.Status != tt.status {
			t.Errorf("reported status = %q, want %q", got.Status, tt.status)
		}
	}
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	srv := handlers.NewServer()
	srv.AddBot(testToken, tgbotapi.User{ID: 100, UserName: "relay_command_bot"})
	hs := httptest.NewServer(srv)
	defer hs.Close()
	api, err := tgbotapi.NewBotAPIWithClient(testToken, hs.URL+"/bot%s/%s", hs.Client())
	if err != nil {
		t.Fatal(err)
	}

	n := Notifier{Api: api}
	ctx := context.Background()
	id, err := n.Send(ctx, userID, "⏳ Processing: 0/5")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := n.Edit(ctx, userID, id, "⏳ Processing: 1/5"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	msgs := srv.Messages("77")
	if len(msgs) != 1 || msgs[0].Text != "⏳ Processing: 1/5" {
		t.Fatalf("messages = %+v", msgs)
	}
	if err := n.Delete(ctx, userID, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(srv.Messages("77")) != 0 {
		t.Fatal("message not deleted")
	}
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	batchdomain "media_relay_bot/internal/pkg/batch/domain"
	batchusecase "media_relay_bot/internal/pkg/batch/usecase"
	"media_relay_bot/internal/pkg/mock-api/handlers"
	"media_relay_bot/internal/pkg/preferences"
	sessiondomain "media_relay_bot/internal/pkg/session/domain"
	storeusecase "media_relay_bot/internal/pkg/store/usecase"
)

const (
	testToken = "100:command-bot-secret"
	userID    = int64(77)
)

type fakeSessions struct {
	mu       sync.Mutex
	bindings sessiondomain.Bindings
	bound    []string
	calls    []string
}

func (f *fakeSessions) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSessions) BindRelay(_ context.Context, _ int64, token string) error {
	f.record("bind")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = append(f.bound, token)
	f.bindings.BotBound = true
	return nil
}

func (f *fakeSessions) UnbindRelay(context.Context, int64) error {
	f.record("unbind")
	return nil
}

func (f *fakeSessions) AddUserSession(context.Context, int64, string) error {
	f.record("add_session")
	return nil
}

func (f *fakeSessions) ReleaseUserSession(context.Context, int64) error {
	f.record("logout")
	return nil
}

func (f *fakeSessions) Bindings(context.Context, int64) (sessiondomain.Bindings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bindings, nil
}

type fakeBatches struct {
	mu        sync.Mutex
	startErr  error
	job       *batchdomain.BatchJob
	orphan    *batchdomain.BatchJob
	started   []batchusecase.StartRequest
	ran       int
	cancelled int
}

func (f *fakeBatches) Start(_ context.Context, req batchusecase.StartRequest) (*batchusecase.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, req)
	return &batchusecase.Batch{Job: batchdomain.BatchJob{UserID: req.UserID, Kind: req.Kind, Total: req.Count}, Ref: req.Ref}, nil
}

func (f *fakeBatches) Run(context.Context, *batchusecase.Batch) batchdomain.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran++
	return batchdomain.Summary{}
}

func (f *fakeBatches) Cancel(int64) (batchdomain.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job == nil {
		return batchdomain.BatchJob{}, batchdomain.ErrJobNotFound
	}
	f.cancelled++
	return *f.job, nil
}

func (f *fakeBatches) Status(int64) (batchdomain.BatchJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job == nil {
		return batchdomain.BatchJob{}, false
	}
	return *f.job, true
}

func (f *fakeBatches) TakeOrphan(int64) (batchdomain.BatchJob, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orphan == nil {
		return batchdomain.BatchJob{}, false, nil
	}
	job := *f.orphan
	f.orphan = nil
	return job, true, nil
}

type harness struct {
	bot      *Bot
	srv      *handlers.Server
	sessions *fakeSessions
	batches  *fakeBatches
	prefs    *preferences.Service
	nextID   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := handlers.NewServer()
	srv.AddBot(testToken, tgbotapi.User{ID: 100, UserName: "relay_command_bot"})
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	api, err := tgbotapi.NewBotAPIWithClient(testToken, hs.URL+"/bot%s/%s", hs.Client())
	if err != nil {
		t.Fatalf("NewBotAPIWithClient() error = %v", err)
	}
	h := &harness{
		srv:      srv,
		sessions: &fakeSessions{bindings: sessiondomain.Bindings{BotBound: true}},
		batches:  &fakeBatches{},
		prefs:    preferences.NewService(storeusecase.NewMemoryStorage(), t.TempDir()),
		nextID:   1,
	}
	h.bot = New(api, Deps{
		Sessions:    h.sessions,
		Batches:     h.batches,
		Preferences: h.prefs,
		Log:         zerolog.Nop(),
	})
	return h
}

// send прогоняет текст пользователя через обработчик и ждет запущенные задачи.
func (h *harness) send(text string) {
	msg := &tgbotapi.Message{
		MessageID: h.nextID,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
	h.nextID++
	if strings.HasPrefix(text, "/") {
		length := len(text)
		if i := strings.IndexByte(text, ' '); i >= 0 {
			length = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}
	h.srv.Seed(fmt.Sprint(userID), *msg)
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
	h.bot.Wait()
}

// replies - тексты, отправленные ботом пользователю.
func (h *harness) replies() []string {
	var out []string
	for _, m := range h.srv.Messages(fmt.Sprint(userID)) {
		if m.From != nil && m.From.ID == 100 {
			out = append(out, m.Text)
		}
	}
	return out
}

func (h *harness) lastReply(t *testing.T) string {
	t.Helper()
	r := h.replies()
	if len(r) == 0 {
		t.Fatal("bot did not reply")
	}
	return r[len(r)-1]
}

func TestBatchConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send("/batch")
	if got := h.lastReply(t); !strings.Contains(got, "first message") {
		t.Fatalf("reply to /batch = %q", got)
	}
	h.send("https://t.me/channelx/1000")
	if got := h.lastReply(t); !strings.Contains(got, "How many") {
		t.Fatalf("reply to link = %q", got)
	}
	h.send("5")

	if len(h.batches.started) != 1 || h.batches.ran != 1 {
		t.Fatalf("started = %+v, ran = %d", h.batches.started, h.batches.ran)
	}
	req := h.batches.started[0]
	if req.Kind != batchdomain.KindBatch || req.Count != 5 || req.Ref.ChannelRef != "channelx" || req.Ref.MessageID != 1000 || req.ChatID != userID {
		t.Errorf("start request = %+v", req)
	}
	if st := h.bot.conversations.Get(userID).State; st != StateIdle {
		t.Errorf("conversation state = %s", st)
	}
}

func TestBatchWithInlineLink(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send("/batch https://t.me/c/123456/10")
	if st := h.bot.conversations.Get(userID).State; st != StateAwaitingCount {
		t.Fatalf("state = %s", st)
	}
}

func TestBatchRejectsBadInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send("/batch")
	h.send("not a link")
	if got := h.lastReply(t); !strings.Contains(got, "Invalid link") {
		t.Fatalf("reply = %q", got)
	}
	h.send("https://t.me/channelx/1000")
	h.send("zero")
	if got := h.lastReply(t); !strings.Contains(got, "whole number") {
		t.Fatalf("reply = %q", got)
	}
	if st := h.bot.conversations.Get(userID).State; st != StateAwaitingCount {
		t.Fatalf("state = %s", st)
	}
}

func TestLimitExceededKeepsAskingForCount(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.batches.startErr = fmt.Errorf("%w (max 10)", batchusecase.ErrLimitExceeded)
	h.send("/batch https://t.me/channelx/1000")
	h.send("50")

	if got := h.lastReply(t); !strings.Contains(got, "max 10") {
		t.Fatalf("reply = %q", got)
	}
	if st := h.bot.conversations.Get(userID).State; st != StateAwaitingCount {
		t.Fatalf("state = %s", st)
	}
	if h.batches.ran != 0 {
		t.Error("batch ran despite refusal")
	}
}

func TestBareLinkRunsSingle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send("https://t.me/channelx/1002")
	if len(h.batches.started) != 1 {
		t.Fatalf("started = %+v", h.batches.started)
	}
	if req := h.batches.started[0]; req.Kind != batchdomain.KindSingle || req.Count != 1 || req.Ref.MessageID != 1002 {
		t.Errorf("request = %+v", req)
	}

	h.send("just chatting")
	if len(h.batches.started) != 1 {
		t.Error("plain text started a task")
	}
}

func TestSingleCommandFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send("/single")
	h.send("https://t.me/channelx/7")
	if len(h.batches.started) != 1 || h.batches.started[0].Kind != batchdomain.KindSingle {
		t.Fatalf("started = %+v", h.batches.started)
	}
}

func TestSecondCommandRejectedWhileActive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.batches.job = &batchdomain.BatchJob{UserID: userID, Kind: batchdomain.KindBatch, Total: 5, Current: 2}
	h.send("/batch")
	if got := h.lastReply(t); got != textBusy {
		t.Fatalf("reply = %q", got)
	}
	h.send("https://t.me/channelx/5")
	if len(h.batches.started) != 0 {
		t.Fatal("second task started")
	}
}

func TestRequiresRelayBot(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.sessions.bindings = sessiondomain.Bindings{}
	h.send("/single https://t.me/channelx/5")
	if got := h.lastReply(t); got != textNeedBot {
		t.Fatalf("reply = %q", got)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send("/cancel")
	if got := h.lastReply(t); !strings.Contains(got, "No active task") {
		t.Fatalf("reply = %q", got)
	}

	h.send("/batch")
	h.send("/stop")
	if got := h.lastReply(t); got != "👌 Cancelled." {
		t.Fatalf("reply = %q", got)
	}

	h.batches.job = &batchdomain.BatchJob{UserID: userID, Total: 5, Current: 2}
	h.send("/cancel")
	if got := h.lastReply(t); !strings.Contains(got, "2/5") || h.batches.cancelled != 1 {
		t.Fatalf("reply = %q, cancelled = %d", got, h.batches.cancelled)
	}
}

func TestOrphanReportedOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.batches.orphan = &batchdomain.BatchJob{UserID: userID, ChannelRef: "channelx", StartMessageID: 1000, Total: 5, Current: 3, Orphaned: true}
	h.send("/help")
	h.send("/help")

	orphans := 0
	for _, r := range h.replies() {
		if strings.Contains(r, "interrupted by a restart") {
			orphans++
			if !strings.Contains(r, "message 1003") {
				t.Errorf("orphan text = %q", r)
			}
		}
	}
	if orphans != 1 {
		t.Fatalf("orphan reports = %d", orphans)
	}
}

func TestSetBotForgetsTokenMessage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	token := "12345:AAAbbbCCCdddEEEfffGGGhhh"
	h.send("/setbot " + token)

	if len(h.sessions.bound) != 1 || h.sessions.bound[0] != token {
		t.Fatalf("bound = %v", h.sessions.bound)
	}
	for _, m := range h.srv.Messages(fmt.Sprint(userID)) {
		if strings.Contains(m.Text, token) {
			t.Fatal("token message left in chat")
		}
	}
	if got := h.lastReply(t); !strings.HasPrefix(got, "✅") {
		t.Fatalf("reply = %q", got)
	}

	h.send("/setbot nonsense")
	if len(h.sessions.bound) != 1 {
		t.Fatal("invalid token bound")
	}
}

func TestCredentialCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send("/addsession 1BVtsOK8Bu3-secret")
	h.send("/logout")
	h.send("/rembot")
	want := []string{"add_session", "logout", "unbind"}
	if strings.Join(h.sessions.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v", h.sessions.calls)
	}
}

func TestSettingsCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.send("/setchat -1001234567/42")
	h.send("/setrename @mychannel")
	h.send("/delword spam")
	h.send("/replace 'old name' 'new name'")

	prefs, err := h.prefs.Load(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if prefs.Destination == nil || prefs.Destination.Chat.ID != -1001234567 || prefs.Destination.ReplyTo != 42 {
		t.Errorf("destination = %+v", prefs.Destination)
	}
	if prefs.RenameTag != "@mychannel" || prefs.Replacements["old name"] != "new name" || !prefs.IsDeleted("spam") {
		t.Errorf("prefs = %+v", prefs)
	}

	h.send("/replace spam ham")
	if got := h.lastReply(t); !strings.Contains(got, "delete list") {
		t.Fatalf("reply = %q", got)
	}

	h.send("/reset")
	prefs, _ = h.prefs.Load(ctx, userID)
	if prefs.Destination != nil || prefs.RenameTag != "" {
		t.Errorf("prefs after reset = %+v", prefs)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.batches.job = &batchdomain.BatchJob{UserID: userID, Kind: batchdomain.KindBatch, Total: 5, Current: 2, Success: 1}
	h.sessions.bindings = sessiondomain.Bindings{BotBound: true, RelayLive: true, OverflowReady: true}
	h.send("/status")
	got := h.lastReply(t)
	for _, want := range []string{"2/5", "bound, connected", "User session: not set", "Shared reader"} {
		if !strings.Contains(got, want) {
			t.Errorf("status %q lacks %q", got, want)
		}
	}
}

func TestStartErrorText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{batchdomain.ErrJobActive, textBusy},
		{fmt.Errorf("relay client: %w", sessiondomain.ErrNotConfigured), textNeedBot},
		{fmt.Errorf("reader client: %w", sessiondomain.ErrUnavailable), "/addsession"},
		{batchusecase.ErrPremiumOnly, "premium"},
		{errors.New("boom"), "Could not start"},
	}
	for _, tt := range tests {
		if got := startErrorText(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("startErrorText(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"a b", []string{"a", "b"}},
		{"'old name' \"new name\"", []string{"old name", "new name"}},
		{"  spaced   out ", []string{"spaced", "out"}},
		{"'' x", []string{"", "x"}},
		{"", nil},
	}
	for _, tt := range tests {
		got := splitArgs(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send("/frobnicate")
	if got := h.lastReply(t); !strings.Contains(got, "Unknown command") {
		t.Fatalf("reply = %q", got)
	}
}

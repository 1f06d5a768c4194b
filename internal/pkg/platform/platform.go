package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type Role string

const (
	RoleRelay       Role = "relay"
	RoleUserSession Role = "user_session"
	RoleOverflow    Role = "overflow"
)

// ChatRef адресует чат либо по публичному имени, либо по числовому id.
type ChatRef struct {
	ID       int64
	Username string
}

func ChatID(id int64) ChatRef { return ChatRef{ID: id} }

func ChatUsername(name string) ChatRef {
	return ChatRef{Username: strings.TrimPrefix(name, "@")}
}

func (c ChatRef) IsZero() bool { return c.ID == 0 && c.Username == "" }

func (c ChatRef) String() string {
	if c.Username != "" {
		return "@" + c.Username
	}
	return strconv.FormatInt(c.ID, 10)
}

// Destination - чат назначения и необязательный тред (ответ на сообщение).
type Destination struct {
	Chat    ChatRef
	ReplyTo int
}

// ParseDestination разбирает сохраненный формат "chatId" или "chatId/threadId".
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	chatPart, threadPart, hasThread := strings.Cut(raw, "/")
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return Destination{}, fmt.Errorf("parse destination chat %q: %w", chatPart, err)
	}
	dest := Destination{Chat: ChatID(chatID)}
	if hasThread {
		thread, err := strconv.Atoi(threadPart)
		if err != nil {
			return Destination{}, fmt.Errorf("parse destination thread %q: %w", threadPart, err)
		}
		dest.ReplyTo = thread
	}
	return dest, nil
}

type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaDocument  MediaKind = "document"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaSticker   MediaKind = "sticker"
)

// Media описывает вложение. Handle непрозрачен для ядра и понятен только
// клиенту, который получил сообщение.
type Media struct {
	Kind      MediaKind
	FileName  string
	MimeType  string
	Size      int64
	Duration  int
	Width     int
	Height    int
	Performer string
	Title     string
	Handle    any
}

type Message struct {
	ID      int
	Chat    ChatRef
	Text    string
	Caption string
	Media   *Media
}

func (m *Message) HasMedia() bool { return m != nil && m.Media != nil }

type ProgressFunc func(done, total int64)

type UploadRequest struct {
	Kind      MediaKind
	Path      string
	FileName  string
	Caption   string
	Thumb     string
	Duration  int
	Width     int
	Height    int
	Performer string
	Title     string
	Progress  ProgressFunc
}

// Client - общий набор возможностей Relay, UserSession и Overflow.
type Client interface {
	Role() Role
	Name() string

	GetMessage(ctx context.Context, chat ChatRef, id int) (*Message, error)
	JoinChat(ctx context.Context, chat ChatRef) error
	RefreshDialogs(ctx context.Context, limit int) error

	SendText(ctx context.Context, dest Destination, text string) (int, error)
	EditText(ctx context.Context, chat ChatRef, id int, text string) error
	SendStored(ctx context.Context, dest Destination, msg *Message, caption string) (int, error)
	Download(ctx context.Context, msg *Message, path string, progress ProgressFunc) error
	Upload(ctx context.Context, dest Destination, req UploadRequest) (int, error)
	Copy(ctx context.Context, dest Destination, from ChatRef, id int) (int, error)
	Delete(ctx context.Context, chat ChatRef, ids ...int) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

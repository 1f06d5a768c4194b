// Package platformtest содержит управляемый тестами platform.Client.
package platformtest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"media_relay_bot/internal/pkg/platform"
)

type Sent struct {
	Dest    platform.Destination
	Text    string
	Upload  *platform.UploadRequest
	Stored  *platform.Message
	CopyOf  int
	Caption string
}

// Client отвечает на GetMessage из Messages/Errors и записывает все вызовы.
type Client struct {
	RoleValue platform.Role
	NameValue string

	// ключ - ChatRef.String() + "/" + id
	Messages map[string]*platform.Message
	Errors   map[string]error

	DownloadBody []byte
	DownloadErr  error
	UploadErr    error
	StoredErr    error
	PingErr      error
	JoinErr      error
	// UnknownPeers: Upload отвечает NotFound, пока не вызван RefreshDialogs.
	UnknownPeers bool

	mu      sync.Mutex
	Calls   []string
	Sent    []Sent
	Edits   []string
	Deleted []int
	Closed  bool
	nextID  int
	loaded  bool
	// Hook вызывается в начале GetMessage.
	Hook func(chat platform.ChatRef, id int)
}

func New(role platform.Role, name string) *Client {
	return &Client{
		RoleValue: role,
		NameValue: name,
		Messages:  map[string]*platform.Message{},
		Errors:    map[string]error{},
		nextID:    100,
	}
}

func Key(chat platform.ChatRef, id int) string {
	return fmt.Sprintf("%s/%d", chat.String(), id)
}

func (c *Client) Put(chat platform.ChatRef, msg *platform.Message) {
	msg.Chat = chat
	c.Messages[Key(chat, msg.ID)] = msg
}

func (c *Client) record(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, fmt.Sprintf(format, args...))
}

func (c *Client) CallLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Calls...)
}

func (c *Client) SentLog() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.Sent...)
}

func (c *Client) id() int {
	c.nextID++
	return c.nextID
}

func (c *Client) Role() platform.Role { return c.RoleValue }
func (c *Client) Name() string { return c.NameValue }

func (c *Client) GetMessage(_ context.Context, chat platform.ChatRef, id int) (*platform.Message, error) {
	c.record("get %s", Key(chat, id))
	if c.Hook != nil {
		c.Hook(chat, id)
	}
	if err, ok := c.Errors[Key(chat, id)]; ok {
		return nil, err
	}
	if msg, ok := c.Messages[Key(chat, id)]; ok {
		cp := *msg
		return &cp, nil
	}
	return nil, platform.Wrap(platform.KindNotFound, "get_message", fmt.Errorf("%s", Key(chat, id)))
}

func (c *Client) JoinChat(_ context.Context, chat platform.ChatRef) error {
	c.record("join %s", chat.String())
	return c.JoinErr
}

func (c *Client) RefreshDialogs(_ context.Context, limit int) error {
	c.record("dialogs %d", limit)
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (c *Client) SendText(_ context.Context, dest platform.Destination, text string) (int, error) {
	c.record("send_text %s", dest.Chat.String())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, Sent{Dest: dest, Text: text})
	return c.id(), nil
}

func (c *Client) EditText(_ context.Context, chat platform.ChatRef, id int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Edits = append(c.Edits, text)
	return nil
}

func (c *Client) SendStored(_ context.Context, dest platform.Destination, msg *platform.Message, caption string) (int, error) {
	c.record("send_stored %s", dest.Chat.String())
	if c.StoredErr != nil {
		return 0, c.StoredErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, Sent{Dest: dest, Stored: msg, Caption: caption})
	return c.id(), nil
}

func (c *Client) Download(_ context.Context, msg *platform.Message, path string, progress platform.ProgressFunc) error {
	c.record("download %d", msg.ID)
	if c.DownloadErr != nil {
		return c.DownloadErr
	}
	if err := os.WriteFile(path, c.DownloadBody, 0o600); err != nil {
		return err
	}
	if progress != nil {
		progress(int64(len(c.DownloadBody)), int64(len(c.DownloadBody)))
	}
	return nil
}

func (c *Client) Upload(_ context.Context, dest platform.Destination, req platform.UploadRequest) (int, error) {
	c.record("upload %s %s", req.Kind, dest.Chat.String())
	if c.UploadErr != nil {
		return 0, c.UploadErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UnknownPeers && !c.loaded {
		return 0, platform.Wrap(platform.KindNotFound, "resolve", fmt.Errorf("peer %s is not cached", dest.Chat.String()))
	}
	r := req
	c.Sent = append(c.Sent, Sent{Dest: dest, Upload: &r, Caption: req.Caption})
	return c.id(), nil
}

func (c *Client) Copy(_ context.Context, dest platform.Destination, from platform.ChatRef, id int) (int, error) {
	c.record("copy %s/%d -> %s", from.String(), id, dest.Chat.String())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, Sent{Dest: dest, CopyOf: id})
	return c.id(), nil
}

func (c *Client) Delete(_ context.Context, chat platform.ChatRef, ids ...int) error {
	c.record("delete %s %v", chat.String(), ids)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deleted = append(c.Deleted, ids...)
	return nil
}

func (c *Client) Ping(context.Context) error {
	c.record("ping")
	return c.PingErr
}

func (c *Client) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ platform.Client = (*Client)(nil)

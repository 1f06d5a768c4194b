package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/platform"
)

// scriptedInvoker отвечает на вызовы tg.Client заранее заготовленными объектами.
type scriptedInvoker struct {
	mu      sync.Mutex
	calls   []string
	respond func(input bin.Encoder) (bin.Encoder, error)
}

func (s *scriptedInvoker) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf("%T", input))
	s.mu.Unlock()
	resp, err := s.respond(input)
	if err != nil {
		return err
	}
	var buf bin.Buffer
	if err := resp.Encode(&buf); err != nil {
		return err
	}
	return output.Decode(&buf)
}

func (s *scriptedInvoker) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func scriptedClient(role platform.Role, inv *scriptedInvoker) *Client {
	return &Client{
		role:  role,
		name:  string(role),
		api:   tg.NewClient(inv),
		peers: newPeerCache(),
		log:   zerolog.Nop(),
	}
}

func TestPeerMissRefreshesDialogs(t *testing.T) {
	t.Parallel()

	var sentTo tg.InputPeerClass
	inv := &scriptedInvoker{respond: func(input bin.Encoder) (bin.Encoder, error) {
		switch req := input.(type) {
		case *tg.MessagesGetDialogsRequest:
			return &tg.MessagesDialogs{Chats: []tg.ChatClass{
				&tg.Channel{ID: 1234567890, AccessHash: 77, Title: "staging", Photo: &tg.ChatPhotoEmpty{}},
			}}, nil
		case *tg.MessagesSendMessageRequest:
			sentTo = req.Peer
			return &tg.UpdateShortSentMessage{ID: 9}, nil
		}
		return nil, errors.New("unexpected call")
	}}
	c := scriptedClient(platform.RoleOverflow, inv)

	id, err := c.SendText(context.Background(), platform.Destination{Chat: platform.ChatID(-1001234567890)}, "hi")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if id != 9 {
		t.Fatalf("id = %d", id)
	}
	ch, ok := sentTo.(*tg.InputPeerChannel)
	if !ok || ch.ChannelID != 1234567890 || ch.AccessHash != 77 {
		t.Fatalf("peer = %#v", sentTo)
	}

	// второй промах в пределах интервала не перечитывает диалоги
	if _, err := c.SendText(context.Background(), platform.Destination{Chat: platform.ChatID(-1001234567890)}, "again"); err != nil {
		t.Fatalf("second SendText() error = %v", err)
	}
	dialogs := 0
	for _, call := range inv.log() {
		if call == "*tg.MessagesGetDialogsRequest" {
			dialogs++
		}
	}
	if dialogs != 1 {
		t.Fatalf("dialog refreshes = %d, calls = %v", dialogs, inv.log())
	}
}

func TestPeerMissResolvesUserDirectly(t *testing.T) {
	t.Parallel()

	var sentTo tg.InputPeerClass
	inv := &scriptedInvoker{respond: func(input bin.Encoder) (bin.Encoder, error) {
		switch req := input.(type) {
		case *tg.MessagesGetDialogsRequest:
			// боту getDialogs недоступен
			return nil, errors.New("BOT_METHOD_INVALID")
		case *tg.UsersGetUsersRequest:
			return &tg.UserClassVector{Elems: []tg.UserClass{&tg.User{ID: 42, AccessHash: 5}}}, nil
		case *tg.MessagesSendMessageRequest:
			sentTo = req.Peer
			return &tg.UpdateShortSentMessage{ID: 3}, nil
		}
		return nil, errors.New("unexpected call")
	}}
	c := scriptedClient(platform.RoleRelay, inv)

	if _, err := c.SendText(context.Background(), platform.Destination{Chat: platform.ChatID(42)}, "hi"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	u, ok := sentTo.(*tg.InputPeerUser)
	if !ok || u.UserID != 42 || u.AccessHash != 5 {
		t.Fatalf("peer = %#v", sentTo)
	}
}

func TestPeerMissStillUnknown(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{respond: func(input bin.Encoder) (bin.Encoder, error) {
		switch input.(type) {
		case *tg.MessagesGetDialogsRequest:
			return &tg.MessagesDialogs{}, nil
		case *tg.ChannelsGetChannelsRequest:
			return nil, errors.New("CHANNEL_INVALID")
		}
		return nil, errors.New("unexpected call")
	}}
	c := scriptedClient(platform.RoleOverflow, inv)

	_, err := c.SendText(context.Background(), platform.Destination{Chat: platform.ChatID(-1009)}, "hi")
	if platform.KindOf(err) != platform.KindNotFound {
		t.Fatalf("err = %v, kind = %v", err, platform.KindOf(err))
	}
}

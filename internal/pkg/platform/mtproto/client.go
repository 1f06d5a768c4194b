package mtproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/platform"
)

var errNotAuthorized = errors.New("session is not authorized")

type Options struct {
	AppID   int
	AppHash string
	// Artifact - файл сессии; для строковых сессий он создается из строки.
	Artifact string
	Log      zerolog.Logger
}

// Credentials - чем авторизоваться: токен бота или строка сессии Telethon.
type Credentials struct {
	BotToken      string
	SessionString string
}

// Client держит подключение gotd, запущенное в отдельной горутине.
type Client struct {
	role  platform.Role
	name  string
	tg    *telegram.Client
	api   *tg.Client
	peers *peerCache
	log   zerolog.Logger

	refreshMu   sync.Mutex
	refreshedAt time.Time

	stop     context.CancelFunc
	done     chan error
	closeMu  sync.Mutex
	closed   bool
	closeErr error
}

// Connect поднимает соединение и ждет авторизации.
func Connect(ctx context.Context, role platform.Role, creds Credentials, opts Options) (*Client, error) {
	if opts.AppID == 0 || opts.AppHash == "" {
		return nil, platform.Wrap(platform.KindConfigurationMissing, "connect", errors.New("telegram app_id/app_hash are not set"))
	}
	if opts.Artifact == "" {
		return nil, platform.Wrap(platform.KindConfigurationMissing, "connect", errors.New("no session artifact path"))
	}
	if err := os.MkdirAll(filepath.Dir(opts.Artifact), 0o700); err != nil {
		return nil, platform.Wrap(platform.KindFatal, "connect", err)
	}

	storage := &session.FileStorage{Path: opts.Artifact}
	if creds.SessionString != "" {
		data, err := session.TelethonSession(creds.SessionString)
		if err != nil {
			return nil, platform.Wrap(platform.KindConfigurationMissing, "connect", fmt.Errorf("decode session string: %w", err))
		}
		if err := (&session.Loader{Storage: storage}).Save(ctx, data); err != nil {
			return nil, platform.Wrap(platform.KindFatal, "connect", err)
		}
	}

	client := telegram.NewClient(opts.AppID, opts.AppHash, telegram.Options{
		SessionStorage: storage,
		NoUpdates:      true,
	})
	c := &Client{
		role:  role,
		tg:    client,
		api:   client.API(),
		peers: newPeerCache(),
		done:  make(chan error, 1),
		log:   opts.Log.With().Str("component", "mtproto").Str("role", string(role)).Logger(),
	}

	runCtx, stop := context.WithCancel(context.Background())
	c.stop = stop
	ready := make(chan error, 1)
	go func() {
		c.done <- client.Run(runCtx, func(ctx context.Context) error {
			ready <- c.authorize(ctx, creds)
			<-ctx.Done()
			return nil
		})
	}()

	select {
	case err := <-ready:
		if err != nil {
			_ = c.Close(context.Background())
			return nil, err
		}
		return c, nil
	case err := <-c.done:
		stop()
		c.closed = true
		if err == nil {
			err = errors.New("client stopped before authorization")
		}
		return nil, classify("connect", err)
	case <-ctx.Done():
		_ = c.Close(context.Background())
		return nil, platform.Wrap(platform.KindTransient, "connect", ctx.Err())
	}
}

func (c *Client) authorize(ctx context.Context, creds Credentials) error {
	status, err := c.tg.Auth().Status(ctx)
	if err != nil {
		return classify("auth", err)
	}
	if !status.Authorized {
		if creds.BotToken == "" {
			return platform.Wrap(platform.KindConfigurationMissing, "auth", errNotAuthorized)
		}
		if _, err := c.tg.Auth().Bot(ctx, creds.BotToken); err != nil {
			return classify("auth", err)
		}
	}
	self, err := c.tg.Self(ctx)
	if err != nil {
		return classify("auth", err)
	}
	c.name = self.FirstName
	if self.Username != "" {
		c.name = "@" + self.Username
	}
	return nil
}

func (c *Client) Role() platform.Role { return c.role }
func (c *Client) Name() string        { return c.name }

func (c *Client) GetMessage(ctx context.Context, chat platform.ChatRef, id int) (*platform.Message, error) {
	peer, err := c.peer(ctx, chat)
	if err != nil {
		return nil, err
	}
	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: id}}

	var res tg.MessagesMessagesClass
	if ch, ok := inputChannel(peer); ok {
		res, err = c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{Channel: ch, ID: ids})
	} else {
		res, err = c.api.MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		return nil, classify("get_message", err)
	}

	var msgs []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesMessages:
		c.peers.absorb(r.Chats, r.Users)
		msgs = r.Messages
	case *tg.MessagesMessagesSlice:
		c.peers.absorb(r.Chats, r.Users)
		msgs = r.Messages
	case *tg.MessagesChannelMessages:
		c.peers.absorb(r.Chats, r.Users)
		msgs = r.Messages
	}
	for _, m := range msgs {
		if msg, ok := m.(*tg.Message); ok && msg.ID == id {
			return convertMessage(msg, chat), nil
		}
	}
	return nil, platform.Wrap(platform.KindNotFound, "get_message", fmt.Errorf("message %d in %s", id, chat))
}

func (c *Client) JoinChat(ctx context.Context, chat platform.ChatRef) error {
	peer, err := c.peer(ctx, chat)
	if err != nil {
		return err
	}
	ch, ok := inputChannel(peer)
	if !ok {
		return nil
	}
	if _, err := c.api.ChannelsJoinChannel(ctx, ch); err != nil {
		if isAlreadyMember(err) {
			return nil
		}
		return classify("join", err)
	}
	return nil
}

// JoinInvite вступает по хешу приглашения t.me/+hash.
func (c *Client) JoinInvite(ctx context.Context, hash string) error {
	if _, err := c.api.MessagesImportChatInvite(ctx, hash); err != nil {
		if isAlreadyMember(err) {
			return nil
		}
		return classify("join", err)
	}
	return nil
}

// RefreshDialogs заполняет кэш пиров из последних диалогов.
func (c *Client) RefreshDialogs(ctx context.Context, limit int) error {
	res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	if err != nil {
		return classify("dialogs", err)
	}
	switch r := res.(type) {
	case *tg.MessagesDialogs:
		c.peers.absorb(r.Chats, r.Users)
	case *tg.MessagesDialogsSlice:
		c.peers.absorb(r.Chats, r.Users)
	}
	c.markRefreshed()
	return nil
}

func (c *Client) SendText(ctx context.Context, dest platform.Destination, text string) (int, error) {
	peer, err := c.peer(ctx, dest.Chat)
	if err != nil {
		return 0, err
	}
	req := &tg.MessagesSendMessageRequest{Peer: peer, Message: text, RandomID: randomID()}
	if dest.ReplyTo != 0 {
		req.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: dest.ReplyTo}
	}
	upd, err := c.api.MessagesSendMessage(ctx, req)
	if err != nil {
		return 0, classify("send_text", err)
	}
	return sentMessageID(upd, req.RandomID), nil
}

func (c *Client) EditText(ctx context.Context, chat platform.ChatRef, id int, text string) error {
	peer, err := c.peer(ctx, chat)
	if err != nil {
		return err
	}
	if _, err := c.api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{Peer: peer, ID: id, Message: text}); err != nil {
		if isNotModified(err) {
			return nil
		}
		return classify("edit_text", err)
	}
	return nil
}

// SendStored отправляет уже существующий в Telegram файл без скачивания.
func (c *Client) SendStored(ctx context.Context, dest platform.Destination, msg *platform.Message, caption string) (int, error) {
	if !msg.HasMedia() {
		return c.SendText(ctx, dest, caption)
	}
	ref, ok := msg.Media.Handle.(FileRef)
	if !ok || ref.Input == nil {
		return 0, platform.Wrap(platform.KindFatal, "send_stored", platform.ErrUnsupported)
	}
	peer, err := c.peer(ctx, dest.Chat)
	if err != nil {
		return 0, err
	}
	req := &tg.MessagesSendMediaRequest{Peer: peer, Media: ref.Input, Message: caption, RandomID: randomID()}
	if dest.ReplyTo != 0 {
		req.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: dest.ReplyTo}
	}
	upd, err := c.api.MessagesSendMedia(ctx, req)
	if err != nil {
		return 0, classify("send_stored", err)
	}
	return sentMessageID(upd, req.RandomID), nil
}

func (c *Client) Download(ctx context.Context, msg *platform.Message, path string, progress platform.ProgressFunc) error {
	if !msg.HasMedia() {
		return platform.Wrap(platform.KindNotFound, "download", errors.New("message has no media"))
	}
	ref, ok := msg.Media.Handle.(FileRef)
	if !ok || ref.Location == nil {
		return platform.Wrap(platform.KindFatal, "download", platform.ErrUnsupported)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return platform.Wrap(platform.KindFatal, "download", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return platform.Wrap(platform.KindFatal, "download", err)
	}
	w := &progressWriter{w: out, total: msg.Media.Size, fn: progress}
	_, err = downloader.NewDownloader().Download(c.api, ref.Location).Stream(ctx, w)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return classify("download", err)
	}
	return nil
}

func (c *Client) Upload(ctx context.Context, dest platform.Destination, req platform.UploadRequest) (int, error) {
	peer, err := c.peer(ctx, dest.Chat)
	if err != nil {
		return 0, err
	}
	up := uploader.NewUploader(c.api)
	if req.Progress != nil {
		up = up.WithProgress(uploadProgress(req.Progress))
	}
	file, err := up.FromPath(ctx, req.Path)
	if err != nil {
		return 0, classify("upload", err)
	}
	var thumb tg.InputFileClass
	if req.Thumb != "" {
		if thumb, err = uploader.NewUploader(c.api).FromPath(ctx, req.Thumb); err != nil {
			c.log.Debug().Err(err).Msg("thumbnail upload failed")
			thumb = nil
		}
	}

	send := &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    uploadedMedia(req, file, thumb),
		Message:  req.Caption,
		RandomID: randomID(),
	}
	if dest.ReplyTo != 0 {
		send.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: dest.ReplyTo}
	}
	upd, err := c.api.MessagesSendMedia(ctx, send)
	if err != nil {
		return 0, classify("upload", err)
	}
	return sentMessageID(upd, send.RandomID), nil
}

// Copy пересылает сообщение без указания автора.
func (c *Client) Copy(ctx context.Context, dest platform.Destination, from platform.ChatRef, id int) (int, error) {
	src, err := c.peer(ctx, from)
	if err != nil {
		return 0, err
	}
	to, err := c.peer(ctx, dest.Chat)
	if err != nil {
		return 0, err
	}
	rid := randomID()
	upd, err := c.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer:   src,
		ToPeer:     to,
		ID:         []int{id},
		RandomID:   []int64{rid},
		DropAuthor: true,
	})
	if err != nil {
		return 0, classify("copy", err)
	}
	return sentMessageID(upd, rid), nil
}

func (c *Client) Delete(ctx context.Context, chat platform.ChatRef, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	peer, err := c.peer(ctx, chat)
	if err != nil {
		return err
	}
	if ch, ok := inputChannel(peer); ok {
		_, err = c.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{Channel: ch, ID: ids})
	} else {
		_, err = c.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{Revoke: true, ID: ids})
	}
	return classify("delete", err)
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.UpdatesGetState(ctx)
	return classify("ping", err)
}

// Close останавливает Run и ждет его завершения. Повторный вызов безопасен.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return c.closeErr
	}
	c.closed = true
	c.stop()
	select {
	case err := <-c.done:
		if err != nil && !errors.Is(err, context.Canceled) {
			c.closeErr = err
		}
	case <-ctx.Done():
		c.closeErr = ctx.Err()
	}
	return c.closeErr
}

func randomID() int64 {
	var b [8]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		panic(err)
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

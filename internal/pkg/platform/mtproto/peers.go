package mtproto

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/tg"

	"media_relay_bot/internal/pkg/platform"
)

const channelPrefix = "-100"

// peerCache хранит access hash каналов, групп и пользователей,
// увиденных в диалогах и при разрешении username.
type peerCache struct {
	mu        sync.RWMutex
	channels  map[int64]int64
	chats     map[int64]struct{}
	users     map[int64]int64
	usernames map[string]tg.InputPeerClass
}

func newPeerCache() *peerCache {
	return &peerCache{
		channels:  map[int64]int64{},
		chats:     map[int64]struct{}{},
		users:     map[int64]int64{},
		usernames: map[string]tg.InputPeerClass{},
	}
}

// absorb запоминает чаты и пользователей из ответа API.
func (c *peerCache) absorb(chats []tg.ChatClass, users []tg.UserClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range chats {
		switch v := ch.(type) {
		case *tg.Channel:
			c.channels[v.ID] = v.AccessHash
			if v.Username != "" {
				c.usernames[strings.ToLower(v.Username)] = &tg.InputPeerChannel{ChannelID: v.ID, AccessHash: v.AccessHash}
			}
		case *tg.Chat:
			c.chats[v.ID] = struct{}{}
		}
	}
	for _, u := range users {
		if v, ok := u.(*tg.User); ok {
			c.users[v.ID] = v.AccessHash
			if v.Username != "" {
				c.usernames[strings.ToLower(v.Username)] = &tg.InputPeerUser{UserID: v.ID, AccessHash: v.AccessHash}
			}
		}
	}
}

func (c *peerCache) byUsername(name string) (tg.InputPeerClass, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.usernames[strings.ToLower(name)]
	return p, ok
}

// byID понимает id в форме Bot API: -100<id> - канал, -<id> - группа,
// положительный - пользователь.
func (c *peerCache) byID(id int64) (tg.InputPeerClass, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id > 0 {
		hash, ok := c.users[id]
		if !ok {
			return nil, false
		}
		return &tg.InputPeerUser{UserID: id, AccessHash: hash}, true
	}
	if rest, ok := strings.CutPrefix(strconv.FormatInt(id, 10), channelPrefix); ok {
		if chID, err := strconv.ParseInt(rest, 10, 64); err == nil {
			if hash, ok := c.channels[chID]; ok {
				return &tg.InputPeerChannel{ChannelID: chID, AccessHash: hash}, true
			}
		}
	}
	if _, ok := c.chats[-id]; ok && id < 0 {
		return &tg.InputPeerChat{ChatID: -id}, true
	}
	return nil, false
}

// peer разрешает ChatRef; при промахе кэша обращается к API.
func (c *Client) peer(ctx context.Context, ref platform.ChatRef) (tg.InputPeerClass, error) {
	if ref.Username != "" {
		if p, ok := c.peers.byUsername(ref.Username); ok {
			return p, nil
		}
		resolved, err := c.api.ContactsResolveUsername(ctx, ref.Username)
		if err != nil {
			return nil, classify("resolve", err)
		}
		c.peers.absorb(resolved.Chats, resolved.Users)
		if p, ok := c.peers.byUsername(ref.Username); ok {
			return p, nil
		}
		return nil, platform.Wrap(platform.KindNotFound, "resolve", errPeerUnknown)
	}
	if p, ok := c.peers.byID(ref.ID); ok {
		return p, nil
	}
	if c.claimRefresh() {
		if err := c.RefreshDialogs(ctx, missRefreshPage); err != nil {
			c.log.Debug().Err(err).Int64("chat", ref.ID).Msg("dialog refresh on cache miss failed")
		}
		if p, ok := c.peers.byID(ref.ID); ok {
			return p, nil
		}
	}
	c.lookupByID(ctx, ref.ID)
	if p, ok := c.peers.byID(ref.ID); ok {
		return p, nil
	}
	return nil, platform.Wrap(platform.KindNotFound, "resolve", errPeerUnknown)
}

// missRefreshPage - сколько диалогов перечитать при промахе кэша.
const missRefreshPage = 100

const refreshGap = 30 * time.Second

// claimRefresh не дает перечитывать диалоги на каждом промахе подряд.
func (c *Client) claimRefresh() bool {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if time.Since(c.refreshedAt) < refreshGap {
		return false
	}
	c.refreshedAt = time.Now()
	return true
}

func (c *Client) markRefreshed() {
	c.refreshMu.Lock()
	c.refreshedAt = time.Now()
	c.refreshMu.Unlock()
}

// lookupByID запрашивает пир напрямую с нулевым access hash. Ботам
// этого хватает для пользователей и чатов, где они уже состоят;
// getDialogs им недоступен.
func (c *Client) lookupByID(ctx context.Context, id int64) {
	var err error
	switch {
	case id > 0:
		var users []tg.UserClass
		users, err = c.api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUser{UserID: id}})
		if err == nil {
			c.peers.absorb(nil, users)
		}
	case strings.HasPrefix(strconv.FormatInt(id, 10), channelPrefix):
		chID, _ := strconv.ParseInt(strings.TrimPrefix(strconv.FormatInt(id, 10), channelPrefix), 10, 64)
		var res tg.MessagesChatsClass
		res, err = c.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: chID}})
		if err == nil {
			c.absorbChats(res)
		}
	case id < 0:
		var res tg.MessagesChatsClass
		res, err = c.api.MessagesGetChats(ctx, []int64{-id})
		if err == nil {
			c.absorbChats(res)
		}
	}
	if err != nil {
		c.log.Debug().Err(err).Int64("chat", id).Msg("direct peer lookup failed")
	}
}

func (c *Client) absorbChats(res tg.MessagesChatsClass) {
	switch r := res.(type) {
	case *tg.MessagesChats:
		c.peers.absorb(r.Chats, nil)
	case *tg.MessagesChatsSlice:
		c.peers.absorb(r.Chats, nil)
	}
}

func refOf(peer tg.InputPeerClass) platform.ChatRef {
	switch p := peer.(type) {
	case *tg.InputPeerChannel:
		id, _ := strconv.ParseInt(channelPrefix+strconv.FormatInt(p.ChannelID, 10), 10, 64)
		return platform.ChatID(id)
	case *tg.InputPeerChat:
		return platform.ChatID(-p.ChatID)
	case *tg.InputPeerUser:
		return platform.ChatID(p.UserID)
	}
	return platform.ChatRef{}
}

func inputChannel(peer tg.InputPeerClass) (*tg.InputChannel, bool) {
	p, ok := peer.(*tg.InputPeerChannel)
	if !ok {
		return nil, false
	}
	return &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash}, true
}

package usecase

import (
	"context"
	"errors"
	"os"

	"media_relay_bot/internal/pkg/platform"
	storedomain "media_relay_bot/internal/pkg/store/domain"
)

func (p *Pool) UnbindRelay(ctx context.Context, userID int64) error {
	p.teardown(ctx, platform.RoleRelay, userID, true)
	return p.store.Unset(ctx, userID, storedomain.FieldBotToken)
}

// ReleaseUserSession закрывает сессию пользователя и забывает ее (logout).
func (p *Pool) ReleaseUserSession(ctx context.Context, userID int64) error {
	p.teardown(ctx, platform.RoleUserSession, userID, true)
	return p.store.Unset(ctx, userID, storedomain.FieldSessionString)
}

// ReleaseAll закрывает клиентов пользователя, сохраненные данные остаются.
func (p *Pool) ReleaseAll(ctx context.Context, userID int64) {
	p.teardown(ctx, platform.RoleRelay, userID, false)
	p.teardown(ctx, platform.RoleUserSession, userID, false)
}

// Shutdown закрывает всех клиентов, включая Overflow.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	clients := make([]platform.Client, 0, len(p.relays)+len(p.sessions)+1)
	for uid, c := range p.relays {
		clients = append(clients, c)
		delete(p.relays, uid)
	}
	for uid, c := range p.sessions {
		clients = append(clients, c)
		delete(p.sessions, uid)
	}
	if p.overflow != nil {
		clients = append(clients, p.overflow)
		p.overflow = nil
	}
	p.mu.Unlock()

	for _, c := range clients {
		if err := c.Close(ctx); err != nil {
			p.log.Warn().Err(err).Str("name", c.Name()).Msg("client close failed")
		}
	}
}

func (p *Pool) teardown(ctx context.Context, role platform.Role, userID int64, discardArtifact bool) {
	key := cacheKey(role, userID)
	cache, artifact := p.relays, p.RelayArtifact(userID)
	if role == platform.RoleUserSession {
		cache, artifact = p.sessions, p.SessionArtifact(userID)
	}

	p.mu.Lock()
	client, ok := cache[userID]
	delete(cache, userID)
	p.gens[key]++
	p.mu.Unlock()

	if ok {
		if err := client.Close(ctx); err != nil {
			p.log.Warn().Err(err).Str("client", key).Msg("client close failed")
		}
	}
	if !discardArtifact {
		return
	}
	for _, path := range []string{artifact, artifact + "-journal"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Warn().Err(err).Str("path", path).Msg("session artifact not removed")
		}
	}
}

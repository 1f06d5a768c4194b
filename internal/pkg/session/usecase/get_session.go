package usecase

import (
	"context"
	"fmt"

	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/session/domain"
	storedomain "media_relay_bot/internal/pkg/store/domain"
)

const initialDialogPage = 100

// GetRelayClient возвращает закешированный Relay-клиент или создает его из
// сохраненного токена бота.
func (p *Pool) GetRelayClient(ctx context.Context, userID int64) (platform.Client, error) {
	return p.getOrCreate(ctx, platform.RoleRelay, userID, p.relays, func(ctx context.Context) (platform.Client, error) {
		token, err := p.credential(ctx, userID, storedomain.FieldBotToken)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, platform.Wrap(platform.KindConfigurationMissing, "get_relay", domain.ErrNotConfigured)
		}
		return p.factory.NewRelay(ctx, userID, token, p.RelayArtifact(userID))
	})
}

// GetUserSessionClient возвращает клиента пользовательской сессии. После
// создания один раз обновляет список диалогов.
func (p *Pool) GetUserSessionClient(ctx context.Context, userID int64) (platform.Client, error) {
	return p.getOrCreate(ctx, platform.RoleUserSession, userID, p.sessions, func(ctx context.Context) (platform.Client, error) {
		secret, err := p.credential(ctx, userID, storedomain.FieldSessionString)
		if err != nil {
			return nil, err
		}
		if secret == "" {
			return nil, platform.Wrap(platform.KindConfigurationMissing, "get_user_session", domain.ErrUnavailable)
		}
		client, err := p.factory.NewUserSession(ctx, userID, secret, p.SessionArtifact(userID))
		if err != nil {
			return nil, err
		}
		if err := client.RefreshDialogs(ctx, initialDialogPage); err != nil {
			p.log.Warn().Err(err).Int64("user_id", userID).Msg("initial dialog refresh failed")
		}
		return client, nil
	})
}

// ReaderClient - клиент для чтения закрытого контента: сессия пользователя,
// а если ее нет - общий Overflow.
func (p *Pool) ReaderClient(ctx context.Context, userID int64) (platform.Client, error) {
	client, err := p.GetUserSessionClient(ctx, userID)
	if err == nil {
		return client, nil
	}
	p.mu.Lock()
	overflow := p.overflow
	p.mu.Unlock()
	if overflow != nil {
		p.log.Debug().Err(err).Int64("user_id", userID).Msg("using overflow session as reader")
		return overflow, nil
	}
	return nil, err
}

func (p *Pool) getOrCreate(ctx context.Context, role platform.Role, userID int64, cache map[int64]platform.Client, build func(ctx context.Context) (platform.Client, error)) (platform.Client, error) {
	p.mu.Lock()
	if c, ok := cache[userID]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	key := cacheKey(role, userID)
	v, err, _ := p.group.Do(key, func() (any, error) {
		p.mu.Lock()
		if c, ok := cache[userID]; ok {
			p.mu.Unlock()
			return c, nil
		}
		gen := p.gens[key]
		p.mu.Unlock()

		client, err := p.connect(ctx, key, build)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.gens[key] != gen {
			// учетные данные сменились, пока клиент запускался
			go client.Close(context.Background())
			return nil, platform.Wrap(platform.KindTransient, "start "+key, fmt.Errorf("credentials changed during start"))
		}
		cache[userID] = client
		p.log.Info().Str("client", key).Str("name", client.Name()).Msg("client started")
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(platform.Client), nil
}

func (p *Pool) credential(ctx context.Context, userID int64, field string) (string, error) {
	doc, err := p.store.FindOne(ctx, userID)
	if err != nil {
		return "", platform.Wrap(platform.KindTransient, "load credentials", err)
	}
	enc := doc.String(field)
	if enc == "" {
		return "", nil
	}
	plain, err := p.vault.Decrypt(enc)
	if err != nil {
		return "", platform.Wrap(platform.KindConfigurationMissing, "decrypt "+field, err)
	}
	return plain, nil
}

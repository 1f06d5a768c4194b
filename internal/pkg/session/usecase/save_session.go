package usecase

import (
	"context"
	"fmt"

	"media_relay_bot/internal/pkg/platform"
	storedomain "media_relay_bot/internal/pkg/store/domain"
)

// BindRelay сохраняет новый токен бота. Старый клиент и его файл сессии
// удаляются до записи.
func (p *Pool) BindRelay(ctx context.Context, userID int64, token string) error {
	enc, err := p.vault.Encrypt(token)
	if err != nil {
		return err
	}
	p.teardown(ctx, platform.RoleRelay, userID, true)
	if err := p.store.Upsert(ctx, userID, storedomain.Document{storedomain.FieldBotToken: enc}); err != nil {
		return fmt.Errorf("save bot token: %w", err)
	}
	return nil
}

// AddUserSession сохраняет строку сессии пользователя в зашифрованном виде.
func (p *Pool) AddUserSession(ctx context.Context, userID int64, secret string) error {
	enc, err := p.vault.Encrypt(secret)
	if err != nil {
		return err
	}
	p.teardown(ctx, platform.RoleUserSession, userID, true)
	if err := p.store.Upsert(ctx, userID, storedomain.Document{storedomain.FieldSessionString: enc}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// StartOverflow поднимает общий Overflow-клиент из строки сессии оператора.
func (p *Pool) StartOverflow(ctx context.Context, secret string) error {
	if secret == "" {
		return nil
	}
	client, err := p.connect(ctx, string(platform.RoleOverflow), func(ctx context.Context) (platform.Client, error) {
		return p.factory.NewOverflow(ctx, secret, p.OverflowArtifact())
	})
	if err != nil {
		return err
	}
	// без кэша диалогов Overflow не найдет промежуточный чат по id
	if err := client.RefreshDialogs(ctx, initialDialogPage); err != nil {
		p.log.Warn().Err(err).Msg("overflow dialog refresh failed")
	}
	p.mu.Lock()
	p.overflow = client
	p.mu.Unlock()
	p.log.Info().Str("name", client.Name()).Msg("overflow session started")
	return nil
}

package usecase

import (
	"context"

	"media_relay_bot/internal/pkg/store/domain"
)

func (m *MemoryStorage) FindOne(_ context.Context, userID int64) (domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[userID]
	if !ok {
		return nil, nil
	}
	return clone(doc), nil
}

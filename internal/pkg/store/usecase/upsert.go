package usecase

import (
	"context"

	"media_relay_bot/internal/pkg/store/domain"
)

func (m *MemoryStorage) Upsert(_ context.Context, userID int64, fields domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if !ok {
		doc = domain.Document{}
		m.docs[userID] = doc
	}
	for k, v := range clone(fields) {
		doc[k] = v
	}
	return nil
}

func (m *MemoryStorage) Unset(_ context.Context, userID int64, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(doc, f)
	}
	return nil
}

package usecase

import (
	"context"
	"sync"

	"media_relay_bot/internal/pkg/store/domain"
)

// MemoryStorage хранит документы в памяти процесса. Используется в тестах и
// при store.driver=memory.
type MemoryStorage struct {
	docs map[int64]domain.Document
	mu   sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{docs: make(map[int64]domain.Document)}
}

func (m *MemoryStorage) Ping(context.Context) error { return nil }

func (m *MemoryStorage) Close(context.Context) error { return nil }

func clone(doc domain.Document) domain.Document {
	out := make(domain.Document, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case []string:
			out[k] = append([]string(nil), val...)
		case map[string]string:
			m := make(map[string]string, len(val))
			for mk, mv := range val {
				m[mk] = mv
			}
			out[k] = m
		default:
			out[k] = v
		}
	}
	return out
}

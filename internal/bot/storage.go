package bot

import (
	"fmt"
	"sync"
	"time"

	"media_relay_bot/internal/pkg/resolve"
)

type Storage interface {
	Get(userID int64) Conversation
	Transition(userID int64, to State, ref resolve.MessageRef) error
	Reset(userID int64)
	SweepStale(maxAge time.Duration) int
}

// MemoryStorage хранит диалоги в памяти; Idle не хранится.
type MemoryStorage struct {
	conversations map[int64]*Conversation
	now           func() time.Time
	mu            sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[int64]*Conversation),
		now:           time.Now,
	}
}

func (m *MemoryStorage) Get(userID int64) Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, exists := m.conversations[userID]
	if !exists {
		return Conversation{UserID: userID, State: StateIdle}
	}
	return *c
}

func (m *MemoryStorage) Transition(userID int64, to State, ref resolve.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := StateIdle
	if c, exists := m.conversations[userID]; exists {
		from = c.State
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to == StateIdle {
		delete(m.conversations, userID)
		return nil
	}
	m.conversations[userID] = &Conversation{UserID: userID, State: to, Ref: ref, UpdatedAt: m.now()}
	return nil
}

func (m *MemoryStorage) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, userID)
}

// SweepStale сбрасывает диалоги, которые не двигались дольше maxAge.
func (m *MemoryStorage) SweepStale(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for userID, c := range m.conversations {
		if c.UpdatedAt.Before(cutoff) {
			delete(m.conversations, userID)
			removed++
		}
	}
	return removed
}

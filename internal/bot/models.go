package bot

import (
	"errors"
	"time"

	"media_relay_bot/internal/pkg/resolve"
)

var ErrInvalidTransition = errors.New("invalid conversation transition")

// State - шаг диалога с пользователем.
type State int

const (
	StateIdle State = iota
	StateAwaitingBatchLink
	StateAwaitingCount
	StateAwaitingSingleLink
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingBatchLink:
		return "awaiting_batch_link"
	case StateAwaitingCount:
		return "awaiting_count"
	case StateAwaitingSingleLink:
		return "awaiting_single_link"
	}
	return "unknown"
}

var transitions = map[State][]State{
	StateIdle:               {StateAwaitingBatchLink, StateAwaitingSingleLink},
	StateAwaitingBatchLink:  {StateAwaitingCount, StateAwaitingBatchLink},
	StateAwaitingCount:      {StateAwaitingCount},
	StateAwaitingSingleLink: {StateAwaitingSingleLink},
}

// CanTransition проверяет переход. В Idle можно вернуться из любого состояния.
func CanTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Conversation - состояние диалога одного пользователя.
type Conversation struct {
	UserID    int64
	State     State
	Ref       resolve.MessageRef
	UpdatedAt time.Time
}

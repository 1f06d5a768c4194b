package bot

import (
	"errors"
	"testing"
	"time"

	"media_relay_bot/internal/pkg/resolve"
)

func TestConversationTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateAwaitingBatchLink, true},
		{StateIdle, StateAwaitingSingleLink, true},
		{StateIdle, StateAwaitingCount, false},
		{StateAwaitingBatchLink, StateAwaitingCount, true},
		{StateAwaitingBatchLink, StateAwaitingSingleLink, false},
		{StateAwaitingCount, StateAwaitingBatchLink, false},
		{StateAwaitingCount, StateIdle, true},
		{StateAwaitingSingleLink, StateIdle, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestMemoryStorage(t *testing.T) {
	t.Parallel()

	m := NewMemoryStorage()
	if got := m.Get(77); got.State != StateIdle {
		t.Fatalf("initial state = %s", got.State)
	}
	if err := m.Transition(77, StateAwaitingCount, resolve.MessageRef{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition(idle->count) error = %v", err)
	}

	ref, err := resolve.ParseLink("https://t.me/channelx/1000")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(77, StateAwaitingBatchLink, resolve.MessageRef{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(77, StateAwaitingCount, ref); err != nil {
		t.Fatal(err)
	}
	got := m.Get(77)
	if got.State != StateAwaitingCount || got.Ref.MessageID != 1000 {
		t.Fatalf("conversation = %+v", got)
	}

	if err := m.Transition(77, StateIdle, resolve.MessageRef{}); err != nil {
		t.Fatal(err)
	}
	if got := m.Get(77); got.State != StateIdle {
		t.Fatalf("state after idle = %s", got.State)
	}
}

func TestMemoryStorageSweepStale(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	m := NewMemoryStorage()
	m.now = func() time.Time { return now.Add(-2 * time.Hour) }
	if err := m.Transition(1, StateAwaitingSingleLink, resolve.MessageRef{}); err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return now }
	if err := m.Transition(2, StateAwaitingBatchLink, resolve.MessageRef{}); err != nil {
		t.Fatal(err)
	}

	if removed := m.SweepStale(30 * time.Minute); removed != 1 {
		t.Fatalf("SweepStale() = %d, want 1", removed)
	}
	if m.Get(1).State != StateIdle || m.Get(2).State != StateAwaitingBatchLink {
		t.Errorf("states after sweep: 1=%s 2=%s", m.Get(1).State, m.Get(2).State)
	}
}

package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func updateFrom(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
		Text: text,
	}}
}

func TestSlowUserDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	otherDone := make(chan struct{})
	var (
		mu   sync.Mutex
		seen []string
	)
	var wg sync.WaitGroup
	d := newDispatcher(&wg, func(_ context.Context, u tgbotapi.Update) {
		if u.Message.Text == "slow" {
			<-release
		}
		mu.Lock()
		seen = append(seen, u.Message.Text)
		mu.Unlock()
		if u.Message.From.ID == 2 {
			close(otherDone)
		}
	})

	ctx := context.Background()
	d.push(ctx, updateFrom(1, "slow"))
	d.push(ctx, updateFrom(1, "after slow"))
	d.push(ctx, updateFrom(2, "fast"))

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second user waited for the first one")
	}
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != "fast" || seen[1] != "slow" || seen[2] != "after slow" {
		t.Fatalf("handled = %v", seen)
	}
}

func TestDispatcherIgnoresUpdatesWithoutSender(t *testing.T) {
	t.Parallel()
	var wg sync.WaitGroup
	called := false
	d := newDispatcher(&wg, func(context.Context, tgbotapi.Update) { called = true })
	d.push(context.Background(), tgbotapi.Update{})
	wg.Wait()
	if called {
		t.Fatal("update without a sender was handled")
	}
}

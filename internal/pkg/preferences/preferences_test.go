package preferences

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"media_relay_bot/internal/pkg/store/domain"
	"media_relay_bot/internal/pkg/store/usecase"
)

func newService(t *testing.T) (*Service, *usecase.MemoryStorage) {
	t.Helper()
	store := usecase.NewMemoryStorage()
	return NewService(store, t.TempDir()), store
}

func TestDeleteWinsOverReplacement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t)

	if err := svc.AddReplacement(ctx, 1, "promo", "x"); err != nil {
		t.Fatalf("AddReplacement() error = %v", err)
	}
	if err := svc.AddDeleteWords(ctx, 1, "promo", "spam"); err != nil {
		t.Fatalf("AddDeleteWords() error = %v", err)
	}
	prefs, err := svc.Load(ctx, 1)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := prefs.Replacements["promo"]; ok {
		t.Fatalf("replacement must be dropped once the word is deleted: %v", prefs.Replacements)
	}
	if err := svc.AddReplacement(ctx, 1, "SPAM", "ham"); !errors.Is(err, ErrWordDeleted) {
		t.Fatalf("AddReplacement() on deleted word error = %v", err)
	}
}

func TestLoadParsesDestinationAndThumbnail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t)

	if err := svc.SetChat(ctx, 5, "-1009/12"); err != nil {
		t.Fatalf("SetChat() error = %v", err)
	}
	if err := os.WriteFile(svc.ThumbnailPath(5), []byte("jpg"), 0o600); err != nil {
		t.Fatalf("write thumb: %v", err)
	}
	prefs, err := svc.Load(ctx, 5)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if prefs.Destination == nil || prefs.Destination.Chat.ID != -1009 || prefs.Destination.ReplyTo != 12 {
		t.Fatalf("destination = %+v", prefs.Destination)
	}
	if prefs.Thumbnail != svc.ThumbnailPath(5) {
		t.Fatalf("thumbnail = %q", prefs.Thumbnail)
	}

	if err := svc.SetChat(ctx, 5, "not-a-chat"); err == nil {
		t.Fatalf("SetChat() must reject malformed chat ids")
	}

	if err := svc.Reset(ctx, 5); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	prefs, _ = svc.Load(ctx, 5)
	if prefs.Destination != nil || prefs.Thumbnail != "" {
		t.Fatalf("Reset() left preferences behind: %+v", prefs)
	}
}

func TestIsPremium(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store := newService(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if ok, _ := svc.IsPremium(ctx, 3); ok {
		t.Fatalf("user without subscription reported premium")
	}
	_ = store.Upsert(ctx, 3, domain.Document{domain.FieldSubscriptionEnd: now.Add(time.Hour)})
	if ok, _ := svc.IsPremium(ctx, 3); !ok {
		t.Fatalf("active subscription not reported premium")
	}
	_ = store.Upsert(ctx, 3, domain.Document{domain.FieldSubscriptionEnd: now.Add(-time.Hour)})
	if ok, _ := svc.IsPremium(ctx, 3); ok {
		t.Fatalf("expired subscription reported premium")
	}
}

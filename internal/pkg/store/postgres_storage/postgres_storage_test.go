package postgres_storage

import (
	"context"
	"os"
	"testing"
	"time"

	"media_relay_bot/internal/pkg/store/domain"
)

// Нужен живой Postgres: RELAY_TEST_POSTGRES_DSN=postgres://... go test ./...
func openTestStorage(t *testing.T) *PostgresStorage {
	t.Helper()
	dsn := os.Getenv("RELAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RELAY_TEST_POSTGRES_DSN is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestPostgresStorageRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	userID := time.Now().UnixNano()
	t.Cleanup(func() {
		_, _ = s.db.Exec(`DELETE FROM users WHERE user_id = $1`, userID)
	})

	doc, err := s.FindOne(ctx, userID)
	if err != nil || doc != nil {
		t.Fatalf("FindOne on missing user = %v, %v", doc, err)
	}

	if err := s.Upsert(ctx, userID, domain.Document{domain.FieldBotToken: "enc", domain.FieldCaption: "cap"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, userID, domain.Document{domain.FieldDeleteWords: []string{"a", "b"}}); err != nil {
		t.Fatalf("Upsert merge: %v", err)
	}
	if err := s.Unset(ctx, userID, domain.FieldCaption); err != nil {
		t.Fatalf("Unset: %v", err)
	}

	doc, err = s.FindOne(ctx, userID)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if doc.String(domain.FieldBotToken) != "enc" {
		t.Fatalf("bot_token = %q", doc.String(domain.FieldBotToken))
	}
	if doc.String(domain.FieldCaption) != "" {
		t.Fatalf("caption should be unset, got %q", doc.String(domain.FieldCaption))
	}
	if got := doc.Strings(domain.FieldDeleteWords); len(got) != 2 {
		t.Fatalf("delete_words = %v", got)
	}
}

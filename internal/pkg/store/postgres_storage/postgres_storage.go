package postgres_storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"media_relay_bot/internal/pkg/store/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    BIGINT PRIMARY KEY,
	doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Open подключается к Postgres и создает таблицу users при необходимости.
func Open(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate users table: %w", err)
	}
	return NewPostgresStorage(db), nil
}

func (p *PostgresStorage) Upsert(ctx context.Context, userID int64, fields domain.Document) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO users (user_id, doc, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET doc = users.doc || EXCLUDED.doc, updated_at = NOW()
	`, userID, string(payload))
	return err
}

func (p *PostgresStorage) Unset(ctx context.Context, userID int64, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE users SET doc = doc - $2::text[], updated_at = NOW()
		WHERE user_id = $1
	`, userID, pq.Array(fields))
	return err
}

func (p *PostgresStorage) FindOne(ctx context.Context, userID int64) (domain.Document, error) {
	row := p.db.QueryRowContext(ctx, `SELECT doc FROM users WHERE user_id = $1`, userID)

	var raw []byte
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc := domain.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document for user %d: %w", userID, err)
	}
	return doc, nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStorage) Close(context.Context) error {
	return p.db.Close()
}

package domain

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Поля пользовательского документа.
const (
	FieldBotToken         = "bot_token"
	FieldSessionString    = "session_string"
	FieldChatID           = "chat_id"
	FieldRenameTag        = "rename_tag"
	FieldCaption          = "caption"
	FieldReplacementWords = "replacement_words"
	FieldDeleteWords      = "delete_words"
	FieldSubscriptionEnd  = "subscription_end"
)

// Storage - документное хранилище, ключ - id пользователя.
// FindOne возвращает nil, nil если документа нет.
type Storage interface {
	Upsert(ctx context.Context, userID int64, fields Document) error
	Unset(ctx context.Context, userID int64, fields ...string) error
	FindOne(ctx context.Context, userID int64) (Document, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Document map[string]any

func (d Document) String(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Strings читает список строк; порядок сохраняется.
func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (d Document) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch v := d[key].(type) {
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	case map[string]any:
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func (d Document) Time(key string) (time.Time, bool) {
	switch v := d[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortedKeys возвращает ключи отображения в стабильном порядке.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package preferences

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/store/domain"
)

var ErrWordDeleted = errors.New("word is in the delete list")

// UserPreferences - настройки пользователя, которые читает конвейер передачи.
type UserPreferences struct {
	Destination  *platform.Destination
	RenameTag    string
	Caption      string
	Replacements map[string]string
	DeleteWords  []string
	Thumbnail    string
}

// IsDeleted сообщает, попадает ли слово в список удаляемых (без учета регистра).
func (p *UserPreferences) IsDeleted(word string) bool {
	for _, w := range p.DeleteWords {
		if strings.EqualFold(w, word) {
			return true
		}
	}
	return false
}

type Service struct {
	store     domain.Storage
	thumbsDir string
	now       func() time.Time
}

func NewService(store domain.Storage, thumbsDir string) *Service {
	return &Service{store: store, thumbsDir: thumbsDir, now: time.Now}
}

func (s *Service) ThumbnailPath(userID int64) string {
	return filepath.Join(s.thumbsDir, strconv.FormatInt(userID, 10)+".jpg")
}

func (s *Service) Load(ctx context.Context, userID int64) (*UserPreferences, error) {
	doc, err := s.store.FindOne(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences for %d: %w", userID, err)
	}
	prefs := &UserPreferences{
		RenameTag:    doc.String(domain.FieldRenameTag),
		Caption:      doc.String(domain.FieldCaption),
		Replacements: doc.StringMap(domain.FieldReplacementWords),
		DeleteWords:  doc.Strings(domain.FieldDeleteWords),
	}
	if raw := doc.String(domain.FieldChatID); raw != "" {
		dest, err := platform.ParseDestination(raw)
		if err != nil {
			return nil, err
		}
		prefs.Destination = &dest
	}
	if path := s.ThumbnailPath(userID); fileExists(path) {
		prefs.Thumbnail = path
	}
	return prefs, nil
}

func (s *Service) SetChat(ctx context.Context, userID int64, raw string) error {
	if _, err := platform.ParseDestination(raw); err != nil {
		return err
	}
	return s.store.Upsert(ctx, userID, domain.Document{domain.FieldChatID: strings.TrimSpace(raw)})
}

func (s *Service) SetRenameTag(ctx context.Context, userID int64, tag string) error {
	return s.store.Upsert(ctx, userID, domain.Document{domain.FieldRenameTag: tag})
}

func (s *Service) SetCaption(ctx context.Context, userID int64, caption string) error {
	return s.store.Upsert(ctx, userID, domain.Document{domain.FieldCaption: caption})
}

// AddReplacement регистрирует замену; слово из списка удаления заменить нельзя.
func (s *Service) AddReplacement(ctx context.Context, userID int64, word, replacement string) error {
	prefs, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}
	if prefs.IsDeleted(word) {
		return fmt.Errorf("%w: %q", ErrWordDeleted, word)
	}
	prefs.Replacements[word] = replacement
	return s.store.Upsert(ctx, userID, domain.Document{domain.FieldReplacementWords: prefs.Replacements})
}

// AddDeleteWords добавляет слова в список удаления и снимает их замены.
func (s *Service) AddDeleteWords(ctx context.Context, userID int64, words ...string) error {
	prefs, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || prefs.IsDeleted(w) {
			continue
		}
		prefs.DeleteWords = append(prefs.DeleteWords, w)
		delete(prefs.Replacements, w)
	}
	return s.store.Upsert(ctx, userID, domain.Document{
		domain.FieldDeleteWords:      prefs.DeleteWords,
		domain.FieldReplacementWords: prefs.Replacements,
	})
}

func (s *Service) Reset(ctx context.Context, userID int64) error {
	err := s.store.Unset(ctx, userID,
		domain.FieldChatID,
		domain.FieldRenameTag,
		domain.FieldCaption,
		domain.FieldReplacementWords,
		domain.FieldDeleteWords,
	)
	if err != nil {
		return err
	}
	if err := os.Remove(s.ThumbnailPath(userID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove thumbnail: %w", err)
	}
	return nil
}

// IsPremium проверяет, что подписка пользователя еще действует.
func (s *Service) IsPremium(ctx context.Context, userID int64) (bool, error) {
	doc, err := s.store.FindOne(ctx, userID)
	if err != nil {
		return false, err
	}
	end, ok := doc.Time(domain.FieldSubscriptionEnd)
	return ok && end.After(s.now()), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

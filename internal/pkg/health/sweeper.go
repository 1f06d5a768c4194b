package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

type JobSweeper interface {
	SweepStale(maxAge time.Duration, live func(userID int64) bool) ([]int64, error)
}

type ConversationSweeper interface {
	SweepStale(maxAge time.Duration) int
}

// Sweeper убирает брошенные записи пакетов, разговоры и временные файлы
// старше StaleAfter.
type Sweeper struct {
	Interval      time.Duration
	StaleAfter    time.Duration
	Jobs          JobSweeper
	Live          func(userID int64) bool
	Conversations ConversationSweeper
	TempDir       string
	Log           zerolog.Logger

	now func() time.Time
}

func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// SweepResult - сколько чего убрано за проход.
type SweepResult struct {
	Jobs          []int64
	Conversations int
	Files         int
}

func (s *Sweeper) Sweep() SweepResult {
	var res SweepResult
	log := s.Log.With().Str("component", "sweeper").Logger()

	if s.Jobs != nil {
		ids, err := s.Jobs.SweepStale(s.StaleAfter, s.Live)
		if err != nil {
			log.Warn().Err(err).Msg("job sweep failed")
		}
		res.Jobs = ids
	}
	if s.Conversations != nil {
		res.Conversations = s.Conversations.SweepStale(s.StaleAfter)
	}
	if s.TempDir != "" {
		res.Files = s.sweepFiles(log)
	}
	if len(res.Jobs) > 0 || res.Conversations > 0 || res.Files > 0 {
		log.Info().Ints64("jobs", res.Jobs).Int("conversations", res.Conversations).Int("files", res.Files).Msg("stale state reclaimed")
	}
	return res
}

func (s *Sweeper) sweepFiles(log zerolog.Logger) int {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	cutoff := now().Add(-s.StaleAfter)
	removed := 0
	err := filepath.WalkDir(s.TempDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("stale file not removed")
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("dir", s.TempDir).Msg("temp dir sweep failed")
	}
	return removed
}

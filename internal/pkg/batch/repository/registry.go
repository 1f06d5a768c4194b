package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"media_relay_bot/internal/pkg/batch/domain"
)

var ErrDecodeFailed = errors.New("registry decode failed")

// Registry - реестр активных пакетов. Каждое изменение сразу переписывает
// JSON-файл целиком через временный файл и rename.
type Registry struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	jobs map[int64]*domain.BatchJob
}

func NewRegistry(path string) *Registry {
	return &Registry{path: path, now: time.Now, jobs: make(map[int64]*domain.BatchJob)}
}

// Load читает файл, оставшийся от прошлого запуска. Найденные записи
// помечаются как осиротевшие.
func (r *Registry) Load() (int, error) {
	saved, found, err := ReadFile(r.path)
	if err != nil || !found {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, job := range saved {
		job.Orphaned = true
		r.jobs[uid] = job
	}
	return len(saved), nil
}

// ReadFile разбирает файл реестра без захвата состояния.
func ReadFile(path string) (map[int64]*domain.BatchJob, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read registry %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}
	var raw map[string]*domain.BatchJob
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, path, err)
	}
	out := make(map[int64]*domain.BatchJob, len(raw))
	for key, job := range raw {
		uid, err := strconv.ParseInt(key, 10, 64)
		if err != nil || job == nil {
			continue
		}
		job.UserID = uid
		out[uid] = job
	}
	return out, true, nil
}

// Create регистрирует пакет. Живой пакет того же пользователя не заменяется,
// осиротевший - заменяется.
func (r *Registry) Create(job domain.BatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, hadPrev := r.jobs[job.UserID]
	if hadPrev && !prev.Orphaned {
		return domain.ErrJobActive
	}
	now := r.now().UTC()
	job.StartedAt, job.UpdatedAt = now, now
	j := job
	r.jobs[job.UserID] = &j
	if err := r.flushLocked(); err != nil {
		// незаписанная задача не должна блокировать пользователя
		if hadPrev {
			r.jobs[job.UserID] = prev
		} else {
			delete(r.jobs, job.UserID)
		}
		return err
	}
	return nil
}

func (r *Registry) Get(userID int64) (domain.BatchJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[userID]
	if !ok {
		return domain.BatchJob{}, false
	}
	return *job, true
}

// Active сообщает, есть ли у пользователя живой (не осиротевший) пакет.
func (r *Registry) Active(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[userID]
	return ok && !job.Orphaned
}

func (r *Registry) Update(userID int64, fn func(job *domain.BatchJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[userID]
	if !ok {
		return domain.ErrJobNotFound
	}
	fn(job)
	job.UpdatedAt = r.now().UTC()
	return r.flushLocked()
}

func (r *Registry) RequestCancel(userID int64) error {
	return r.Update(userID, func(job *domain.BatchJob) { job.CancelRequested = true })
}

func (r *Registry) CancelRequested(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[userID]
	return ok && job.CancelRequested
}

func (r *Registry) Remove(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[userID]; !ok {
		return nil
	}
	delete(r.jobs, userID)
	return r.flushLocked()
}

// TakeOrphan возвращает и удаляет осиротевшую запись пользователя.
func (r *Registry) TakeOrphan(userID int64) (domain.BatchJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[userID]
	if !ok || !job.Orphaned {
		return domain.BatchJob{}, false, nil
	}
	delete(r.jobs, userID)
	return *job, true, r.flushLocked()
}

// Count - число живых пакетов.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, job := range r.jobs {
		if !job.Orphaned {
			n++
		}
	}
	return n
}

func (r *Registry) Snapshot() []domain.BatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.BatchJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// SweepStale удаляет записи без прогресса дольше maxAge. Живые пакеты,
// которые сейчас крутит цикл, не трогаются: live сообщает об этом.
func (r *Registry) SweepStale(maxAge time.Duration, live func(userID int64) bool) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxAge)
	var removed []int64
	for uid, job := range r.jobs {
		if job.UpdatedAt.After(cutoff) {
			continue
		}
		if !job.Orphaned && live != nil && live(uid) {
			continue
		}
		delete(r.jobs, uid)
		removed = append(removed, uid)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed, r.flushLocked()
}

// Flush принудительно записывает текущее состояние.
func (r *Registry) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *Registry) flushLocked() error {
	out := make(map[string]*domain.BatchJob, len(r.jobs))
	for uid, job := range r.jobs {
		out[strconv.FormatInt(uid, 10)] = job
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	return writeAtomic(r.path, append(data, '\n'))
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	if dirFD, err := os.Open(dir); err == nil {
		_ = dirFD.Sync()
		_ = dirFD.Close()
	}
	return nil
}

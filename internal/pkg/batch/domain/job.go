package domain

import (
	"errors"
	"time"
)

var (
	ErrJobActive    = errors.New("a batch is already running for this user")
	ErrJobNotFound  = errors.New("no batch is running for this user")
	ErrCountInvalid = errors.New("count must be a positive number")
)

type JobKind string

const (
	KindBatch  JobKind = "batch"
	KindSingle JobKind = "single"
)

// BatchJob - сохраняемое состояние пакета одного пользователя.
// Orphaned выставляется для записей, восстановленных после перезапуска:
// они видны, но не продолжаются.
type BatchJob struct {
	ID                string    `json:"id"`
	Kind              JobKind   `json:"kind"`
	UserID            int64     `json:"user_id"`
	ChannelRef        string    `json:"channel_ref"`
	Visibility        string    `json:"visibility"`
	StartMessageID    int       `json:"start_message_id"`
	Total             int       `json:"total"`
	Current           int       `json:"current"`
	Success           int       `json:"success"`
	CancelRequested   bool      `json:"cancel_requested"`
	ProgressChatID    int64     `json:"progress_chat_id,omitempty"`
	ProgressMessageID int       `json:"progress_message_id,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Orphaned          bool      `json:"-"`
}

// InFlightMessageID - id сообщения, которое обрабатывается сейчас.
func (j BatchJob) InFlightMessageID() int {
	return j.StartMessageID + j.Current
}

// Summary - итог пакета.
type Summary struct {
	JobID     string
	Total     int
	Attempted int
	Success   int
	Cancelled bool
	Aborted   error
	Items     []ItemReport
}

type ItemReport struct {
	Offset    int
	MessageID int
	Status    string
	Success   bool
}

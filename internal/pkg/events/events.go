package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeBatchStarted  = "batch.started"
	TypeBatchItem     = "batch.item"
	TypeBatchFinished = "batch.finished"
)

type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	CorrelationID string    `json:"correlation_id"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope собирает конверт события; correlation - id пакета.
func NewEnvelope(eventType, correlationID string, data any) Envelope {
	id := uuid.NewString()
	if correlationID == "" {
		correlationID = id
	}
	return Envelope{
		Meta: Meta{ID: id, Type: eventType, Time: time.Now().UTC(), CorrelationID: correlationID},
		Data: data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

type BatchStarted struct {
	UserID         int64  `json:"user_id"`
	Kind           string `json:"kind"`
	ChannelRef     string `json:"channel_ref"`
	StartMessageID int    `json:"start_message_id"`
	Total          int    `json:"total"`
}

type BatchItem struct {
	UserID    int64  `json:"user_id"`
	MessageID int    `json:"message_id"`
	Outcome   string `json:"outcome"`
	Status    string `json:"status"`
}

type BatchFinished struct {
	UserID    int64  `json:"user_id"`
	Total     int    `json:"total"`
	Attempted int    `json:"attempted"`
	Success   int    `json:"success"`
	Cancelled bool   `json:"cancelled"`
	Error     string `json:"error,omitempty"`
}

// Noop выбрасывает события, когда брокер не настроен.
type Noop struct{}

func (Noop) Publish(context.Context, Envelope) error { return nil }
func (Noop) Close() error                            { return nil }

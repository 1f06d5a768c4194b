package usecase

import (
	"context"
	"fmt"

	"media_relay_bot/internal/pkg/batch/domain"
	"media_relay_bot/internal/pkg/events"
	"media_relay_bot/internal/pkg/resolve"
)

// Start проверяет условия входа в Running и регистрирует пакет.
// Порядок проверок: активный пакет, количество, Relay-клиент, клиент для чтения.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*Batch, error) {
	if req.Kind == "" {
		req.Kind = domain.KindBatch
	}
	if req.Kind == domain.KindSingle {
		req.Count = 1
	}
	if e.registry.Active(req.UserID) {
		return nil, domain.ErrJobActive
	}
	if req.Count < 1 {
		return nil, domain.ErrCountInvalid
	}
	if req.Kind == domain.KindBatch {
		limit, err := e.limit(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if req.Count > limit {
			return nil, fmt.Errorf("%w (max %d)", ErrLimitExceeded, limit)
		}
	}

	relay, err := e.clients.GetRelayClient(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("relay client: %w", err)
	}
	reader, err := e.clients.ReaderClient(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("reader client: %w", err)
	}

	job := domain.BatchJob{
		ID:             newJobID(),
		Kind:           req.Kind,
		UserID:         req.UserID,
		ChannelRef:     req.Ref.ChannelRef,
		Visibility:     string(req.Ref.Visibility),
		StartMessageID: req.Ref.MessageID,
		Total:          req.Count,
		ProgressChatID: req.ChatID,
	}
	if err := e.registry.Create(job); err != nil {
		return nil, err
	}
	job, _ = e.registry.Get(req.UserID)

	e.publish(ctx, events.TypeBatchStarted, job.ID, events.BatchStarted{
		UserID:         job.UserID,
		Kind:           string(job.Kind),
		ChannelRef:     job.ChannelRef,
		StartMessageID: job.StartMessageID,
		Total:          job.Total,
	})
	e.log.Info().Int64("user_id", req.UserID).Str("job_id", job.ID).Str("ref", req.Ref.String()).Int("count", req.Count).Msg("batch accepted")

	return &Batch{Job: job, Ref: req.Ref, clients: resolve.Clients{Relay: relay, Reader: reader}}, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"media_relay_bot/internal/pkg/batch/domain"
	"media_relay_bot/internal/pkg/events"
	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/transfer"
)

const reportTimeout = 15 * time.Second

// Run обрабатывает элементы пакета по одному. Прогресс сохраняется до
// попытки элемента, флаг отмены проверяется перед каждым элементом.
// При остановке процесса (ctx отменен) запись остается на диске.
func (e *Engine) Run(ctx context.Context, b *Batch) domain.Summary {
	uid := b.Job.UserID
	log := e.log.With().Int64("user_id", uid).Str("job_id", b.Job.ID).Logger()

	e.mu.Lock()
	e.running[uid] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, uid)
		e.mu.Unlock()
	}()

	sum := domain.Summary{JobID: b.Job.ID, Total: b.Job.Total}
	progress := e.openProgress(ctx, b)

	for i := 0; i < b.Job.Total; i++ {
		if e.registry.CancelRequested(uid) {
			sum.Cancelled = true
			break
		}
		if ctx.Err() != nil {
			sum.Aborted = ctx.Err()
			break
		}
		if err := e.registry.Update(uid, func(j *domain.BatchJob) { j.Current = i }); err != nil {
			log.Warn().Err(err).Msg("progress not persisted")
		}

		msgID := b.Job.StartMessageID + i
		outcome := e.attempt(ctx, b, msgID)
		if outcome.Kind == transfer.OutcomeRateLimited && outcome.RetryAfter > 0 && outcome.RetryAfter <= e.cfg.FloodWaitMax {
			log.Info().Int("message_id", msgID).Dur("retry_after", outcome.RetryAfter).Msg("rate limited, waiting")
			if err := e.sleep(ctx, outcome.RetryAfter); err == nil {
				outcome = e.attempt(ctx, b, msgID)
			}
		}

		item := domain.ItemReport{Offset: i, MessageID: msgID, Status: outcome.StatusLine(), Success: outcome.Success()}
		sum.Items = append(sum.Items, item)
		sum.Attempted++
		if item.Success {
			sum.Success++
		}
		if err := e.registry.Update(uid, func(j *domain.BatchJob) {
			j.Current = i + 1
			j.Success = sum.Success
		}); err != nil {
			log.Warn().Err(err).Msg("progress not persisted")
		}
		log.Debug().Int("message_id", msgID).Str("outcome", string(outcome.Kind)).Err(outcome.Err).Msg("item done")
		e.publish(ctx, events.TypeBatchItem, b.Job.ID, events.BatchItem{UserID: uid, MessageID: msgID, Outcome: string(outcome.Kind), Status: item.Status})
		progress.update(ctx, sum, item)

		if outcome.Aborts() {
			sum.Aborted = outcome.Err
			break
		}
		if i < b.Job.Total-1 {
			// отмена контекста видна в начале следующей итерации
			_ = e.sleep(ctx, e.cfg.ItemDelay)
		}
	}

	e.finish(ctx, b, sum, progress)
	return sum
}

// RunSingle - путь одного сообщения: Start с количеством 1 и сразу Run.
func (e *Engine) RunSingle(ctx context.Context, req StartRequest) (domain.Summary, error) {
	req.Kind = domain.KindSingle
	b, err := e.Start(ctx, req)
	if err != nil {
		return domain.Summary{}, err
	}
	return e.Run(ctx, b), nil
}

func (e *Engine) attempt(ctx context.Context, b *Batch, msgID int) transfer.Outcome {
	res, err := e.resolver.Resolve(ctx, b.clients, b.Ref.WithMessageID(msgID))
	if err != nil {
		return transfer.Classify(err)
	}
	return e.transfer.Transfer(ctx, transfer.Request{UserID: b.Job.UserID, Relay: b.clients.Relay, Resolution: res})
}

func (e *Engine) finish(ctx context.Context, b *Batch, sum domain.Summary, progress *progressMessage) {
	uid := b.Job.UserID
	shutdown := ctx.Err() != nil && errors.Is(sum.Aborted, ctx.Err())

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if !shutdown {
		if err := e.registry.Remove(uid); err != nil {
			e.log.Warn().Err(err).Int64("user_id", uid).Msg("batch record not removed")
		}
	}

	finished := events.BatchFinished{UserID: uid, Total: sum.Total, Attempted: sum.Attempted, Success: sum.Success, Cancelled: sum.Cancelled}
	if sum.Aborted != nil {
		finished.Error = sum.Aborted.Error()
	}
	e.publish(reportCtx, events.TypeBatchFinished, b.Job.ID, finished)
	progress.close(reportCtx, SummaryText(b.Job.Kind, sum, shutdown))

	e.log.Info().Int64("user_id", uid).Str("job_id", b.Job.ID).Int("success", sum.Success).Int("attempted", sum.Attempted).Int("total", sum.Total).Bool("cancelled", sum.Cancelled).Msg("batch finished")
}

// SummaryText - итоговое сообщение пакета.
func SummaryText(kind domain.JobKind, sum domain.Summary, shutdown bool) string {
	if kind == domain.KindSingle && len(sum.Items) == 1 && sum.Aborted == nil {
		if sum.Items[0].Success {
			return "✅ " + sum.Items[0].Status
		}
		return "❌ " + sum.Items[0].Status
	}

	var b strings.Builder
	switch {
	case shutdown:
		fmt.Fprintf(&b, "⚠️ Batch interrupted by restart after %d/%d: %d successful.\nSend /batch again to continue.", sum.Attempted, sum.Total, sum.Success)
	case sum.Cancelled:
		fmt.Fprintf(&b, "🛑 Batch cancelled after %d/%d: %d successful.", sum.Attempted, sum.Total, sum.Success)
	case sum.Aborted != nil:
		fmt.Fprintf(&b, "❌ Batch stopped after %d/%d: %s", sum.Attempted, sum.Total, abortReason(sum.Aborted))
	default:
		fmt.Fprintf(&b, "✅ Batch completed: %d/%d successful.", sum.Success, sum.Total)
	}
	var failed []string
	for _, it := range sum.Items {
		if !it.Success {
			failed = append(failed, fmt.Sprintf("#%d: %s", it.MessageID, it.Status))
		}
	}
	if len(failed) > 0 && len(failed) <= 20 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(failed, "\n"))
	}
	return b.String()
}

func abortReason(err error) string {
	if errors.Is(err, platform.ErrConfigurationMissing) {
		return "login or bot setup is missing."
	}
	return err.Error()
}

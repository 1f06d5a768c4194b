package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// dispatcher обрабатывает обновления разных пользователей параллельно,
// а обновления одного пользователя - строго по очереди.
type dispatcher struct {
	handle func(ctx context.Context, update tgbotapi.Update)
	wg     *sync.WaitGroup

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
}

func newDispatcher(wg *sync.WaitGroup, handle func(ctx context.Context, update tgbotapi.Update)) *dispatcher {
	return &dispatcher{handle: handle, wg: wg, queues: map[int64][]tgbotapi.Update{}}
}

func (d *dispatcher) push(ctx context.Context, update tgbotapi.Update) {
	userID, ok := senderOf(update)
	if !ok {
		return
	}
	d.mu.Lock()
	queue, running := d.queues[userID]
	d.queues[userID] = append(queue, update)
	d.mu.Unlock()
	if running {
		return
	}
	d.wg.Add(1)
	go d.drain(ctx, userID)
}

// drain живет, пока у пользователя есть необработанные обновления.
func (d *dispatcher) drain(ctx context.Context, userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		next := queue[0]
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		d.handle(ctx, next)
	}
}

func senderOf(update tgbotapi.Update) (int64, bool) {
	if update.Message == nil || update.Message.From == nil {
		return 0, false
	}
	return update.Message.From.ID, true
}

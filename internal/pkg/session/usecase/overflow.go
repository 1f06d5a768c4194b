package usecase

import (
	"context"
	"sync"

	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/session/domain"
)

// AcquireOverflow выдает Overflow-клиент одному вызывающему за раз; release
// нужно вызвать после тяжелой операции.
func (p *Pool) AcquireOverflow(ctx context.Context) (platform.Client, func(), error) {
	p.mu.Lock()
	client := p.overflow
	p.mu.Unlock()
	if client == nil {
		return nil, nil, domain.ErrOverflowUnavailable
	}

	select {
	case p.overflowLock <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	var once sync.Once
	release := func() {
		once.Do(func() { <-p.overflowLock })
	}
	return client, release, nil
}

func (p *Pool) Overflow() platform.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overflow
}

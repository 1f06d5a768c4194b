package health

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

var ErrRestartsExhausted = errors.New("restart limit reached")

type RestartPolicy struct {
	MaxRestarts int
	Delay       time.Duration
}

// RunWithRestarts перезапускает fn после ошибки или паники, не больше
// MaxRestarts раз. Штатный выход (nil или отмена ctx) завершает цикл.
func RunWithRestarts(ctx context.Context, policy RestartPolicy, log zerolog.Logger, fn func(ctx context.Context) error) error {
	restarts := 0
	for {
		err := runGuarded(ctx, fn)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if restarts >= policy.MaxRestarts {
			log.Error().Err(err).Int("restarts", restarts).Msg("giving up")
			return fmt.Errorf("%w after %d attempts: %w", ErrRestartsExhausted, restarts, err)
		}
		restarts++
		log.Error().Err(err).Int("attempt", restarts).Int("max", policy.MaxRestarts).Dur("delay", policy.Delay).Msg("main loop failed, restarting")

		t := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func runGuarded(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

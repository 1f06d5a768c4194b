package health

import (
	"context"
	"fmt"

	"media_relay_bot/internal/pkg/platform"
	sessiondomain "media_relay_bot/internal/pkg/session/domain"
)

// FuncProbe - проба из функции: ошибка означает error, nil - healthy.
type FuncProbe struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p FuncProbe) Name() string { return p.ProbeName }

func (p FuncProbe) Check(ctx context.Context) Component {
	if p.Fn == nil {
		return Component{Name: p.ProbeName, Status: StatusNotConfigured}
	}
	if err := p.Fn(ctx); err != nil {
		return Component{Name: p.ProbeName, Status: StatusError, Detail: err.Error()}
	}
	return Component{Name: p.ProbeName, Status: StatusHealthy}
}

type HandleSource interface {
	Handles() []sessiondomain.Handle
}

// ClientsProbe пингует все живые клиенты одной роли.
// Ни одного клиента - not_configured, часть упала - warning, все - error.
type ClientsProbe struct {
	Role platform.Role
	Pool HandleSource
}

func (p ClientsProbe) Name() string { return string(p.Role) }

func (p ClientsProbe) Check(ctx context.Context) Component {
	var total, failed int
	var firstErr error
	for _, h := range p.Pool.Handles() {
		if h.Role != p.Role {
			continue
		}
		total++
		if err := h.Client.Ping(ctx); err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("user %d: %w", h.UserID, err)
			}
		}
	}
	c := Component{
		Name:    p.Name(),
		Metrics: map[string]float64{"clients": float64(total), "failed": float64(failed)},
	}
	switch {
	case total == 0:
		c.Status = StatusNotConfigured
	case failed == 0:
		c.Status = StatusHealthy
	case failed == total:
		c.Status = StatusError
		c.Detail = firstErr.Error()
	default:
		c.Status = StatusWarning
		c.Detail = fmt.Sprintf("%d of %d unreachable: %v", failed, total, firstErr)
	}
	return c
}

package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusHealthy       Status = "healthy"
	StatusWarning       Status = "warning"
	StatusUnhealthy     Status = "unhealthy"
	StatusError         Status = "error"
	StatusNotConfigured Status = "not_configured"
)

func (s Status) rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusUnhealthy:
		return 2
	case StatusError:
		return 3
	default:
		return 0
	}
}

// Worst возвращает худший статус; not_configured не учитывается.
func Worst(statuses ...Status) Status {
	out := StatusHealthy
	for _, s := range statuses {
		if s == StatusNotConfigured {
			continue
		}
		if s.rank() > out.rank() {
			out = s
		}
	}
	return out
}

type Component struct {
	Name    string             `json:"name"`
	Status  Status             `json:"status"`
	Detail  string             `json:"detail,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

type Report struct {
	Status     Status      `json:"status"`
	Components []Component `json:"components"`
	CheckedAt  time.Time   `json:"checked_at"`
}

type Probe interface {
	Name() string
	Check(ctx context.Context) Component
}

// Supervisor периодически опрашивает пробы параллельно и хранит последний отчет.
type Supervisor struct {
	probes   []Probe
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	mu   sync.RWMutex
	last Report
}

func NewSupervisor(interval time.Duration, log zerolog.Logger, probes ...Probe) *Supervisor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Supervisor{
		probes:   probes,
		interval: interval,
		timeout:  30 * time.Second,
		log:      log.With().Str("component", "health").Logger(),
	}
}

func (s *Supervisor) Run(ctx context.Context) error {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *Supervisor) Check(ctx context.Context) Report {
	results := make([]Component, len(s.probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()
			c := p.Check(pctx)
			if c.Name == "" {
				c.Name = p.Name()
			}
			results[i] = c
			return nil
		})
	}
	_ = g.Wait()

	statuses := make([]Status, len(results))
	for i, c := range results {
		statuses[i] = c.Status
	}
	report := Report{Status: Worst(statuses...), Components: results, CheckedAt: time.Now().UTC()}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	ev := s.log.Info()
	if report.Status != StatusHealthy {
		ev = s.log.Warn()
	}
	ev.Str("status", string(report.Status)).Msg("health check")
	for _, c := range results {
		if c.Status != StatusHealthy && c.Status != StatusNotConfigured {
			s.log.Warn().Str("probe", c.Name).Str("status", string(c.Status)).Str("detail", c.Detail).Msg("health alert")
		}
	}
	return report
}

func (s *Supervisor) Last() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Text - отчет для /status.
func (r Report) Text() string {
	if r.CheckedAt.IsZero() {
		return "Health: not checked yet"
	}
	out := fmt.Sprintf("Health: %s (%s)", r.Status, r.CheckedAt.Format(time.RFC3339))
	for _, c := range r.Components {
		line := fmt.Sprintf("\n• %s: %s", c.Name, c.Status)
		if c.Detail != "" {
			line += " - " + c.Detail
		}
		out += line
	}
	return out
}

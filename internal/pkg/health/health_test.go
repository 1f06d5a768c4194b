package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/platform/platformtest"
	sessiondomain "media_relay_bot/internal/pkg/session/domain"
)

func TestWorst(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []Status
		want Status
	}{
		{nil, StatusHealthy},
		{[]Status{StatusHealthy, StatusNotConfigured}, StatusHealthy},
		{[]Status{StatusWarning, StatusHealthy}, StatusWarning},
		{[]Status{StatusWarning, StatusUnhealthy}, StatusUnhealthy},
		{[]Status{StatusError, StatusUnhealthy, StatusWarning}, StatusError},
	}
	for _, tt := range tests {
		if got := Worst(tt.in...); got != tt.want {
			t.Fatalf("Worst(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

type handles []sessiondomain.Handle

func (h handles) Handles() []sessiondomain.Handle { return h }

func TestClientsProbe(t *testing.T) {
	t.Parallel()
	ok := platformtest.New(platform.RoleRelay, "ok")
	down := platformtest.New(platform.RoleRelay, "down")
	down.PingErr = errors.New("connection reset")

	tests := []struct {
		name string
		pool handles
		want Status
	}{
		{"none", nil, StatusNotConfigured},
		{"all up", handles{{Role: platform.RoleRelay, UserID: 1, Client: ok}}, StatusHealthy},
		{"partial", handles{{Role: platform.RoleRelay, UserID: 1, Client: ok}, {Role: platform.RoleRelay, UserID: 2, Client: down}}, StatusWarning},
		{"all down", handles{{Role: platform.RoleRelay, UserID: 2, Client: down}}, StatusError},
		{"other role", handles{{Role: platform.RoleUserSession, UserID: 2, Client: down}}, StatusNotConfigured},
	}
	for _, tt := range tests {
		got := ClientsProbe{Role: platform.RoleRelay, Pool: tt.pool}.Check(context.Background())
		if got.Status != tt.want {
			t.Fatalf("%s: status = %s, want %s (%s)", tt.name, got.Status, tt.want, got.Detail)
		}
	}
}

type jobCount int

func (n jobCount) Count() int { return int(n) }

func TestSystemProbeThresholds(t *testing.T) {
	t.Parallel()
	p := NewSystemProbe(Thresholds{MemoryPercent: 85, DiskPercent: 90, CPUPercent: 80, MaxJobs: 8}, "/", jobCount(9))
	p.memory = func(context.Context) (float64, error) { return 50, nil }
	p.storage = func(context.Context, string) (float64, error) { return 95, nil }
	p.load = func(context.Context) (float64, error) { return 10, nil }

	c := p.Check(context.Background())
	if c.Status != StatusWarning {
		t.Fatalf("status = %s", c.Status)
	}
	if !strings.Contains(c.Detail, "disk_percent") || !strings.Contains(c.Detail, "active jobs 9 > 8") {
		t.Fatalf("detail = %q", c.Detail)
	}
	if c.Metrics["memory_percent"] != 50 {
		t.Fatalf("metrics = %v", c.Metrics)
	}
}

func TestSupervisorAggregates(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(time.Minute, zerolog.Nop(),
		FuncProbe{ProbeName: "store", Fn: func(context.Context) error { return nil }},
		FuncProbe{ProbeName: "bot", Fn: func(context.Context) error { return errors.New("401") }},
		FuncProbe{ProbeName: "overflow"},
	)
	r := s.Check(context.Background())
	if r.Status != StatusError || len(r.Components) != 3 {
		t.Fatalf("report = %+v", r)
	}
	if s.Last().Status != StatusError {
		t.Fatalf("last report not stored")
	}
	if !strings.Contains(r.Text(), "bot: error - 401") {
		t.Fatalf("text = %q", r.Text())
	}
}

type fakeJobs struct {
	maxAge time.Duration
	ids    []int64
}

func (f *fakeJobs) SweepStale(maxAge time.Duration, live func(int64) bool) ([]int64, error) {
	f.maxAge = maxAge
	var out []int64
	for _, id := range f.ids {
		if live == nil || !live(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeConversations int

func (f fakeConversations) SweepStale(time.Duration) int { return int(f) }

func TestSweeper(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	old := filepath.Join(dir, "7", "old.mp4")
	fresh := filepath.Join(dir, "7", "fresh.mp4")
	_ = os.MkdirAll(filepath.Dir(old), 0o755)
	_ = os.WriteFile(old, []byte("x"), 0o600)
	_ = os.WriteFile(fresh, []byte("x"), 0o600)
	now := time.Now()
	_ = os.Chtimes(old, now.Add(-2*time.Hour), now.Add(-2*time.Hour))

	jobs := &fakeJobs{ids: []int64{1, 2}}
	s := &Sweeper{
		StaleAfter:    30 * time.Minute,
		Jobs:          jobs,
		Live:          func(uid int64) bool { return uid == 2 },
		Conversations: fakeConversations(3),
		TempDir:       dir,
		Log:           zerolog.Nop(),
	}
	res := s.Sweep()
	if len(res.Jobs) != 1 || res.Jobs[0] != 1 || res.Conversations != 3 || res.Files != 1 {
		t.Fatalf("result = %+v", res)
	}
	if jobs.maxAge != 30*time.Minute {
		t.Fatalf("maxAge = %s", jobs.maxAge)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}

func TestRunWithRestarts(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RunWithRestarts(context.Background(), RestartPolicy{MaxRestarts: 2}, zerolog.Nop(), func(context.Context) error {
		calls++
		if calls == 2 {
			panic("boom")
		}
		return errors.New("lost connection")
	})
	if !errors.Is(err, ErrRestartsExhausted) || calls != 3 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}

	calls = 0
	err = RunWithRestarts(context.Background(), RestartPolicy{MaxRestarts: 5}, zerolog.Nop(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

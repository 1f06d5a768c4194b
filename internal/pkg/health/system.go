package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type Thresholds struct {
	MemoryPercent float64
	DiskPercent   float64
	CPUPercent    float64
	MaxJobs       int
}

type JobCounter interface {
	Count() int
}

// SystemProbe смотрит память, диск, CPU и число живых пакетов.
type SystemProbe struct {
	Limits   Thresholds
	DiskPath string
	Jobs     JobCounter

	memory  func(ctx context.Context) (float64, error)
	storage func(ctx context.Context, path string) (float64, error)
	load    func(ctx context.Context) (float64, error)
}

func NewSystemProbe(limits Thresholds, diskPath string, jobs JobCounter) *SystemProbe {
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemProbe{
		Limits:   limits,
		DiskPath: diskPath,
		Jobs:     jobs,
		memory: func(ctx context.Context) (float64, error) {
			v, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return v.UsedPercent, nil
		},
		storage: func(ctx context.Context, path string) (float64, error) {
			u, err := disk.UsageWithContext(ctx, path)
			if err != nil {
				return 0, err
			}
			return u.UsedPercent, nil
		},
		load: func(ctx context.Context) (float64, error) {
			p, err := cpu.PercentWithContext(ctx, time.Second, false)
			if err != nil {
				return 0, err
			}
			if len(p) == 0 {
				return 0, fmt.Errorf("no cpu samples")
			}
			return p[0], nil
		},
	}
}

func (p *SystemProbe) Name() string { return "system" }

func (p *SystemProbe) Check(ctx context.Context) Component {
	c := Component{Name: p.Name(), Status: StatusHealthy, Metrics: map[string]float64{}}
	var alerts []string

	measure := func(key string, limit float64, read func() (float64, error)) {
		v, err := read()
		if err != nil {
			alerts = append(alerts, key+": "+err.Error())
			c.Status = Worst(c.Status, StatusWarning)
			return
		}
		c.Metrics[key] = v
		if limit > 0 && v > limit {
			alerts = append(alerts, fmt.Sprintf("%s %.1f%% > %.0f%%", key, v, limit))
			c.Status = Worst(c.Status, StatusWarning)
		}
	}
	measure("memory_percent", p.Limits.MemoryPercent, func() (float64, error) { return p.memory(ctx) })
	measure("disk_percent", p.Limits.DiskPercent, func() (float64, error) { return p.storage(ctx, p.DiskPath) })
	measure("cpu_percent", p.Limits.CPUPercent, func() (float64, error) { return p.load(ctx) })

	if p.Jobs != nil {
		n := p.Jobs.Count()
		c.Metrics["active_jobs"] = float64(n)
		if p.Limits.MaxJobs > 0 && n > p.Limits.MaxJobs {
			alerts = append(alerts, fmt.Sprintf("active jobs %d > %d", n, p.Limits.MaxJobs))
			c.Status = Worst(c.Status, StatusWarning)
		}
	}
	c.Detail = strings.Join(alerts, "; ")
	return c
}

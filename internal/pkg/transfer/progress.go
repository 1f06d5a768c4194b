package transfer

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const mib = 1024 * 1024

// progressStep - шаг в процентах между правками сообщения о прогрессе.
func progressStep(total int64) int {
	switch {
	case total >= 100*mib:
		return 10
	case total >= 50*mib:
		return 20
	case total >= 10*mib:
		return 30
	default:
		return 50
	}
}

type progressReporter struct {
	title  string
	start  time.Time
	now    func() time.Time
	render func(text string)

	mu   sync.Mutex
	last int
}

func newProgressReporter(title string, now func() time.Time, render func(string)) *progressReporter {
	return &progressReporter{title: title, start: now(), now: now, render: render, last: -1}
}

func (r *progressReporter) Update(done, total int64) {
	if total <= 0 {
		return
	}
	pct := float64(done) / float64(total) * 100
	interval := progressStep(total)
	step := int(pct) / interval * interval

	r.mu.Lock()
	if step == r.last && pct < 100 {
		r.mu.Unlock()
		return
	}
	r.last = step
	r.mu.Unlock()

	r.render(r.text(done, total, pct))
}

func (r *progressReporter) text(done, total int64, pct float64) string {
	filled := int(pct / 10)
	if filled > 10 {
		filled = 10
	}
	bar := strings.Repeat("🟢", filled) + strings.Repeat("🔴", 10-filled)

	elapsed := r.now().Sub(r.start).Seconds()
	var speed float64
	if elapsed > 0 {
		speed = float64(done) / elapsed / mib
	}
	eta := "00:00"
	if speed > 0 {
		left := time.Duration(float64(total-done) / (speed * mib) * float64(time.Second))
		eta = fmt.Sprintf("%02d:%02d", int(left.Minutes()), int(left.Seconds())%60)
	}

	return fmt.Sprintf("%s\n\n%s\n\n⚡ Completed: %.2f MB / %.2f MB\n📊 Done: %.2f%%\n🚀 Speed: %.2f MB/s\n⏳ ETA: %s",
		r.title, bar, float64(done)/mib, float64(total)/mib, pct, speed, eta)
}

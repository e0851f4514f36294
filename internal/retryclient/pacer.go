package retryclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/contactfinder/internal/metrics"
)

// Pacer enforces a minimum interval between call start times across all
// goroutines sharing it.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewPacer returns a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, now: time.Now}
}

// Wait blocks until the caller's reserved start slot. The slot stays
// reserved even if ctx ends first, so spacing never shrinks.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return nil
	}
	now := p.now()
	delay := p.reserve(now).Sub(now)
	if delay <= 0 {
		return nil
	}
	metrics.ObservePacingDelay(delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacer wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// reserve claims the next start slot at or after now.
func (p *Pacer) reserve(now time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := now
	if !p.last.IsZero() {
		if next := p.last.Add(p.interval); next.After(start) {
			start = next
		}
	}
	p.last = start
	return start
}

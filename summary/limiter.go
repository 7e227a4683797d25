package summary

import (
	"context"
	"log/slog"
)

// Limiter caps concurrent summary runs process-wide.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter returns a limiter with n slots (minimum 1).
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	slog.Info("summary concurrency limit initialized", slog.Int("max_concurrent", n))
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is available or ctx is canceled.
// Returns true if slot acquired, false if context canceled.
func (l *Limiter) Acquire(ctx context.Context) bool {
	select {
	case l.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release returns a slot.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
		slog.Warn("summary slot release called without corresponding acquire")
	}
}

// Active returns the number of running summaries.
func (l *Limiter) Active() int { return len(l.slots) }

// Max returns the configured limit.
func (l *Limiter) Max() int { return cap(l.slots) }

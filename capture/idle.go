package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the idle sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// IdleMonitor periodically expires live sessions whose last activity is older than Threshold.
type IdleMonitor struct {
	Store     *Store
	Threshold time.Duration
	Schedule  string
	Now       func() time.Time
	// Expire removes and finalizes one channel; it reports whether it did.
	Expire func(ctx context.Context, channelID string, threshold time.Duration) bool
}

// Sweep expires every idle session once. Keys are snapshotted before any removal.
func (im *IdleMonitor) Sweep(ctx context.Context) []string {
	now := time.Now()
	if im.Now != nil {
		now = im.Now()
	}
	idle := im.Store.Idle(now, im.Threshold)
	var expired []string
	for _, ch := range idle {
		if im.Expire(ctx, ch, im.Threshold) {
			expired = append(expired, ch)
		}
	}
	if len(expired) > 0 {
		slog.Info("idle sweep expired sessions", slog.Int("count", len(expired)), slog.Any("channels", expired))
	}
	return expired
}

// Run schedules Sweep until ctx is canceled.
func (im *IdleMonitor) Run(ctx context.Context) error {
	schedule := im.Schedule
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	if _, err := c.AddFunc(schedule, func() { im.Sweep(ctx) }); err != nil {
		return fmt.Errorf("idle sweep schedule %q: %w", schedule, err)
	}
	slog.Info("idle monitor started", slog.String("schedule", schedule), slog.Duration("threshold", im.Threshold))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("idle monitor stopped")
	return nil
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{slog.Any("err", err)}, keysAndValues...)...)
}

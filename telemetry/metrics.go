// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SessionsStarted    *prometheus.CounterVec // by mode
	SessionsFinalized  *prometheus.CounterVec // by reason
	MessagesIngested   prometheus.Counter
	BackfillMessages   prometheus.Counter
	BackfillFailures   prometheus.Counter
	DeliveryFailures   prometheus.Counter
	SummaryAttempts    *prometheus.CounterVec // by provider, outcome
	SummaryUnavailable prometheus.Counter

	// Histograms (seconds)
	FinalizeDuration prometheus.Observer
	SummaryDuration  *prometheus.HistogramVec // by provider

	// Gauges
	ActiveSessionsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "scribe_sessions_started_total", Help: "Capture sessions started"}, []string{"mode"})
		SessionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{Name: "scribe_sessions_finalized_total", Help: "Capture sessions finalized"}, []string{"reason"})
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_messages_ingested_total", Help: "Live messages appended to a session"})
		BackfillMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_backfill_messages_total", Help: "Historical messages merged into sessions"})
		BackfillFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_backfill_failures_total", Help: "History fetches that failed"})
		DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_delivery_failures_total", Help: "Artifact deliveries that failed"})
		SummaryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "scribe_summary_attempts_total", Help: "Summary provider attempts"}, []string{"provider", "outcome"})
		SummaryUnavailable = promauto.NewCounter(prometheus.CounterOpts{Name: "scribe_summary_unavailable_total", Help: "Finalizations where every summary provider failed"})
		FinalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "scribe_finalize_duration_seconds", Help: "Finalization duration seconds", Buckets: prometheus.DefBuckets})
		SummaryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "scribe_summary_duration_seconds", Help: "Summary provider attempt duration seconds", Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120}}, []string{"provider"})
		ActiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "scribe_active_sessions", Help: "Current number of live capture sessions"})
	})
}

// SetActiveSessions records the number of live sessions.
func SetActiveSessions(n int) {
	if ActiveSessionsGauge != nil {
		ActiveSessionsGauge.Set(float64(n))
	}
}

func IncSessionsStarted(mode string) {
	if SessionsStarted != nil {
		SessionsStarted.WithLabelValues(mode).Inc()
	}
}

func IncSessionsFinalized(reason string) {
	if SessionsFinalized != nil {
		SessionsFinalized.WithLabelValues(reason).Inc()
	}
}

func IncMessagesIngested() {
	if MessagesIngested != nil {
		MessagesIngested.Inc()
	}
}

func AddBackfillMessages(n int) {
	if BackfillMessages != nil && n > 0 {
		BackfillMessages.Add(float64(n))
	}
}

func IncBackfillFailures() {
	if BackfillFailures != nil {
		BackfillFailures.Inc()
	}
}

func IncDeliveryFailures() {
	if DeliveryFailures != nil {
		DeliveryFailures.Inc()
	}
}

func IncSummaryUnavailable() {
	if SummaryUnavailable != nil {
		SummaryUnavailable.Inc()
	}
}

// ObserveSummaryAttempt records one provider attempt. outcome is "ok" or an error class.
func ObserveSummaryAttempt(provider, outcome string, d time.Duration) {
	if SummaryAttempts != nil {
		SummaryAttempts.WithLabelValues(provider, outcome).Inc()
	}
	if SummaryDuration != nil {
		SummaryDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// ObserveFinalize records the duration of one finalization.
func ObserveFinalize(d time.Duration) {
	if FinalizeDuration != nil {
		FinalizeDuration.Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

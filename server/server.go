// Package server exposes the ops HTTP API: health, readiness, live session status, the capture
// ledger, metrics, and an admin endpoint to stop a session. Every request carries a correlation
// id and, when tracing is enabled, a span.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/ledger"
	"github.com/onnwee/chat-scribe/telemetry"
)

// Runs is the ledger view used by /captures and /readyz.
type Runs interface {
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers read from.
type Deps struct {
	Manager *capture.Manager
	// Runs is nil when no database is configured.
	Runs Runs
	// Connected reports whether the chat platform session is up.
	Connected func() bool
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// NewRouter returns the HTTP handler with all routes. ctx bounds the rate limiter's cleanup loop.
func NewRouter(ctx context.Context, deps Deps) http.Handler {
	h := &handlers{deps: deps}
	limiter := newIPRateLimiter(ctx, deps.RateLimit)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(correlate)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/status", h.status)
	r.Get("/captures", h.captures)

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth(deps.Auth))
		r.Use(rateLimit(limiter))
		r.Post("/sessions/{channelID}/stop", h.stopSession)
	})
	return r
}

// correlate reuses or generates X-Correlation-ID, starts a span and records the status code.
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
		)
		defer span.End()
		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(telemetry.HTTPStatusAttr(rec.statusCode))
		if rec.statusCode >= 500 {
			telemetry.RecordError(span, fmt.Errorf("HTTP %d", rec.statusCode))
		}
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, deps Deps) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute, // admin stop waits for finalization
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel keeps context values but lets shutdown finish
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}

// compile-time check that the ledger satisfies Runs
var _ Runs = (*ledger.Ledger)(nil)

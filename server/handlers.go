package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/telemetry"
)

type handlers struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// healthz is the liveness probe: the process is up and serving.
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz checks the platform connection and, when configured, the ledger database.
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"platform", func() error {
			if h.deps.Connected != nil && !h.deps.Connected() {
				return errors.New("chat platform not connected")
			}
			return nil
		}},
		{"database", func() error {
			if h.deps.Runs == nil {
				return nil
			}
			return h.deps.Runs.Ping(r.Context())
		}},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	sessions := h.deps.Manager.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions": len(sessions),
		"sessions":        sessions,
		"idle_timeout":    h.deps.Manager.IdleTimeout.String(),
	})
}

func (h *handlers) captures(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		http.Error(w, "capture ledger not configured", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.deps.Runs.Recent(r.Context(), limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list captures failed", slog.Any("err", err))
		http.Error(w, "failed to list captures", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": entries})
}

// stopSession finalizes a live session as if /stop had been issued in the channel.
func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	target := r.URL.Query().Get("target")
	report, err := h.deps.Manager.Stop(r.Context(), channelID, target)
	switch {
	case errors.Is(err, capture.ErrNotRecording):
		http.Error(w, "channel is not recording", http.StatusNotFound)
		return
	case err != nil:
		telemetry.LoggerWithCorr(r.Context()).Error("admin stop failed", slog.String("channel", channelID), slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "run_id": report.RunID.String()})
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("session stopped via admin API", slog.String("channel", channelID), slog.Int("messages", report.Messages))
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     report.RunID.String(),
		"messages":   report.Messages,
		"empty":      report.Empty,
		"summarized": report.Summarized,
		"delivered":  report.Delivered,
		"target":     report.Target,
	})
}

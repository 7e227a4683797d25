// Package ledger persists one row per finalized capture in the capture_runs table.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onnwee/chat-scribe/capture"
)

// Entry is a stored capture run.
type Entry struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channel_id"`
	ChannelName     string    `json:"channel_name"`
	Mode            string    `json:"mode"`
	Reason          string    `json:"reason"`
	Messages        int       `json:"messages"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	SummaryProvider string    `json:"summary_provider,omitempty"`
	SummaryModel    string    `json:"summary_model,omitempty"`
	Delivered       bool      `json:"delivered"`
	Target          string    `json:"target"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Ledger reads and writes capture runs.
type Ledger struct {
	DB *sql.DB
}

// New returns a ledger over an already migrated database.
func New(db *sql.DB) *Ledger { return &Ledger{DB: db} }

// RecordRun inserts a run. Re-recording the same id is a no-op.
func (l *Ledger) RecordRun(ctx context.Context, run capture.Run) error {
	_, err := l.DB.ExecContext(ctx, `INSERT INTO capture_runs
		(id, channel_id, channel_name, mode, reason, message_count, window_start, window_end,
		 summary_provider, summary_model, delivered, target_channel, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO NOTHING`,
		run.ID.String(), run.ChannelID, run.ChannelName, run.Mode.String(), string(run.Reason), run.Messages,
		nullTime(run.WindowStart), nullTime(run.WindowEnd), run.SummaryProvider, run.SummaryModel,
		run.Delivered, run.Target, run.Error)
	if err != nil {
		return fmt.Errorf("insert capture run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := l.DB.QueryContext(ctx, `SELECT id, channel_id, channel_name, mode, reason, message_count,
		window_start, window_end, summary_provider, summary_model, delivered, target_channel, error, created_at
		FROM capture_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query capture runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			start, end sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.ChannelID, &e.ChannelName, &e.Mode, &e.Reason, &e.Messages,
			&start, &end, &e.SummaryProvider, &e.SummaryModel, &e.Delivered, &e.Target, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan capture run: %w", err)
		}
		e.WindowStart, e.WindowEnd = start.Time, end.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (l *Ledger) Ping(ctx context.Context) error { return l.DB.PingContext(ctx) }

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

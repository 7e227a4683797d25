package capture

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/onnwee/chat-scribe/platform"
)

// Merger fetches a historical window and normalizes it into chronological records.
type Merger struct {
	Client   platform.Client
	Location *time.Location
}

// Fetch runs the plan against the platform. On a fetch error the records gathered so far are
// returned together with the error so the session can proceed with a partial backfill.
func (m *Merger) Fetch(ctx context.Context, channelID string, plan FetchPlan) ([]Record, error) {
	q := platform.HistoryQuery{
		ChannelID:   channelID,
		AfterID:     plan.AfterID,
		After:       plan.After,
		BeforeID:    plan.BeforeID,
		Before:      plan.Before,
		Limit:       plan.Limit,
		OldestFirst: plan.OldestFirst(),
	}
	raw, err := m.Client.FetchHistory(ctx, q)
	records := m.normalize(raw, plan)
	if err != nil {
		return records, fmt.Errorf("fetch history: %w", err)
	}
	return records, nil
}

// normalize drops the bot's own messages and duplicates, truncates to the ceiling and
// restores chronological order for newest-first results.
func (m *Merger) normalize(raw []platform.Message, plan FetchPlan) []Record {
	self := m.Client.SelfID()
	seen := make(map[string]struct{}, len(raw))
	out := make([]Record, 0, len(raw))
	for _, msg := range raw {
		if self != "" && msg.Author.ID == self {
			continue
		}
		rec := NewRecord(msg, m.Location)
		key := rec.dedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
		if plan.Limit > 0 && len(out) >= plan.Limit {
			break
		}
	}
	if !plan.OldestFirst() {
		slices.Reverse(out)
	}
	// platforms occasionally page out of order; keep the non-decreasing invariant
	slices.SortStableFunc(out, func(a, b Record) int { return a.Timestamp.Compare(b.Timestamp) })
	return out
}

// backfill fetches the plan and merges it into a live session that was started with
// beginBackfill. It never fails the session: errors are logged and returned for reporting.
func (m *Merger) backfill(ctx context.Context, sess *Session, plan FetchPlan) BackfillResult {
	logger := slog.Default().With(slog.String("component", "capture_backfill"), slog.String("channel", sess.ChannelID))
	records, err := m.Fetch(ctx, sess.ChannelID, plan)
	if err != nil {
		logger.Warn("history fetch failed", slog.Any("err", err), slog.Int("fetched", len(records)))
	}
	added, ok := sess.completeBackfill(records)
	if !ok {
		logger.Info("session closed before backfill completed; discarding", slog.Int("fetched", len(records)))
		return BackfillResult{Err: err, Discarded: true}
	}
	if added > 0 {
		sess.SetBacktrack(fmt.Sprintf("%s (backfilled %d messages)", plan.Description, added))
	}
	logger.Info("backfill merged", slog.Int("added", added))
	return BackfillResult{Added: added, Description: sess.Backtrack(), Err: err}
}

// BackfillResult reports the outcome of a start-time backfill.
type BackfillResult struct {
	Added       int
	Description string
	Err         error
	Discarded   bool
}

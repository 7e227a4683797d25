package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-scribe/platform"
	"github.com/onnwee/chat-scribe/telemetry"
)

// noticeTimeout bounds the idle notice sent before an expired session is finalized.
const noticeTimeout = 10 * time.Second

// Manager owns the live session registry and runs the start, ingest and stop paths.
type Manager struct {
	Store       *Store
	Merger      *Merger
	Finalizer   *Finalizer
	Notifier    Notifier
	Limits      Limits
	Location    *time.Location
	IdleTimeout time.Duration
	Now         func() time.Time
	SelfID      string

	// base outlives individual requests; backfills and idle finalizations run under it.
	base context.Context
	wg   sync.WaitGroup
}

// NewManager wires a manager around the given collaborators. base is the process context.
func NewManager(base context.Context, store *Store, merger *Merger, fin *Finalizer, notifier Notifier) *Manager {
	if base == nil {
		base = context.Background()
	}
	return &Manager{
		Store:       store,
		Merger:      merger,
		Finalizer:   fin,
		Notifier:    notifier,
		Limits:      DefaultLimits,
		Location:    merger.Location,
		IdleTimeout: 30 * time.Minute,
		base:        base,
	}
}

func (m *Manager) now() time.Time {
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	if m.Location != nil {
		now = now.In(m.Location)
	}
	return now
}

// StartRequest asks for a new session on a channel.
type StartRequest struct {
	ChannelID   string
	ChannelName string
	Directive   Directive
}

// StartResult describes an accepted live start.
type StartResult struct {
	Session  *Session
	Warnings []string
	// Backfill yields exactly one result when a history fetch was started and is nil otherwise.
	Backfill <-chan BackfillResult
}

// Start opens a live session. Batch directives must go through Export.
func (m *Manager) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if req.Directive.Mode() != ModeLive {
		return StartResult{}, ErrBatchSession
	}
	now := m.now()
	plan, fetch, invalid, notices := req.Directive.Plan(now, m.Location, m.Limits)
	sess := NewSession(req.ChannelID, req.ChannelName, ModeLive, now, req.Directive.Summary)

	var bctx context.Context
	if fetch {
		sess.beginBackfill()
		var cancel context.CancelFunc
		bctx, cancel = context.WithCancel(m.base)
		sess.cancel = cancel
	}
	if err := m.Store.Start(sess); err != nil {
		if sess.cancel != nil {
			sess.cancel()
		}
		return StartResult{}, err
	}
	telemetry.IncSessionsStarted(ModeLive.String())
	telemetry.SetActiveSessions(m.Store.Len())
	slog.Info("capture started", slog.String("channel", req.ChannelID), slog.Bool("backfill", fetch), slog.Bool("summary", sess.SummaryEnabled))

	res := StartResult{Session: sess, Warnings: warnings(invalid, notices)}
	if fetch {
		ch := make(chan BackfillResult, 1)
		res.Backfill = ch
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer close(ch)
			r := m.Merger.backfill(bctx, sess, plan)
			telemetry.AddBackfillMessages(r.Added)
			if r.Err != nil {
				telemetry.IncBackfillFailures()
			}
			ch <- r
		}()
	}
	return res, nil
}

// Ingest appends a live platform message to its channel's session. It returns ErrNotRecording
// when the channel is not tracked; callers treat that as a no-op.
func (m *Manager) Ingest(msg platform.Message) error {
	if m.SelfID != "" && msg.Author.ID == m.SelfID {
		return nil
	}
	rec := NewRecord(msg, m.Location)
	if err := m.Store.AppendLive(msg.ChannelID, rec, m.now()); err != nil {
		return err
	}
	telemetry.IncMessagesIngested()
	return nil
}

// Stop finalizes the channel's live session, delivering to target (or the channel itself).
func (m *Manager) Stop(ctx context.Context, channelID, target string) (Report, error) {
	sess, err := m.Store.Remove(channelID)
	if err != nil {
		return Report{}, err
	}
	telemetry.SetActiveSessions(m.Store.Len())
	m.wg.Add(1)
	defer m.wg.Done()
	return m.Finalizer.Finalize(ctx, sess, target, ReasonExplicit)
}

// ExportResult describes a finished batch export.
type ExportResult struct {
	Warnings []string
	FetchErr error
	Report   Report
}

// Export runs a bounded one-shot export. The session never enters the live store, so a live
// session on the same channel may run concurrently.
func (m *Manager) Export(ctx context.Context, req StartRequest, target string) (ExportResult, error) {
	now := m.now()
	plan, _, invalid, notices := req.Directive.Plan(now, m.Location, m.Limits)
	res := ExportResult{Warnings: warnings(invalid, notices)}

	sess := NewSession(req.ChannelID, req.ChannelName, ModeBatch, now, req.Directive.Summary)
	telemetry.IncSessionsStarted(ModeBatch.String())
	sess.beginBackfill()
	records, err := m.Merger.Fetch(ctx, req.ChannelID, plan)
	if err != nil {
		res.FetchErr = err
		telemetry.IncBackfillFailures()
		slog.Warn("batch export fetch failed", slog.String("channel", req.ChannelID), slog.Any("err", err), slog.Int("fetched", len(records)))
	}
	added, _ := sess.completeBackfill(records)
	telemetry.AddBackfillMessages(added)
	sess.SetBacktrack(fmt.Sprintf("%s (exported %d messages)", plan.Description, added))

	m.wg.Add(1)
	defer m.wg.Done()
	report, err := m.Finalizer.Finalize(ctx, sess, target, ReasonBatch)
	res.Report = report
	return res, err
}

// expire removes a session that is still idle and finalizes it in the background. Only the
// caller whose removal succeeds finalizes, so each session terminates exactly once. The idle
// notice goes out from the finalizing goroutine, not the sweep.
func (m *Manager) expire(_ context.Context, channelID string, threshold time.Duration) bool {
	now := m.now()
	sess, err := m.Store.RemoveIf(channelID, func(s *Session) bool { return s.idleSince(now, threshold) })
	if errors.Is(err, ErrNotRecording) {
		return false
	}
	telemetry.SetActiveSessions(m.Store.Len())
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if m.Notifier != nil {
			nctx, cancel := context.WithTimeout(m.base, noticeTimeout)
			msg := fmt.Sprintf("No activity for %s; stopping the recording and saving...", humanMinutes(threshold))
			if _, err := m.Notifier.Notify(nctx, channelID, msg); err != nil {
				slog.Warn("idle notice failed", slog.String("channel", channelID), slog.Any("err", err))
			}
			cancel()
		}
		if _, err := m.Finalizer.Finalize(m.base, sess, "", ReasonIdle); err != nil {
			slog.Warn("idle finalization failed", slog.String("channel", channelID), slog.Any("err", err))
		}
	}()
	return true
}

// IdleMonitor returns a monitor that expires this manager's idle sessions.
func (m *Manager) IdleMonitor(schedule string) *IdleMonitor {
	return &IdleMonitor{
		Store:     m.Store,
		Threshold: m.IdleTimeout,
		Schedule:  schedule,
		Now:       m.now,
		Expire:    m.expire,
	}
}

// Wait blocks until in-flight backfills and finalizations finish.
func (m *Manager) Wait() { m.wg.Wait() }

func warnings(invalid []error, notices []string) []string {
	out := make([]string, 0, len(invalid)+len(notices))
	for _, err := range invalid {
		out = append(out, err.Error())
	}
	return append(out, notices...)
}

func humanMinutes(d time.Duration) string {
	mins := int(d / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	if mins > 0 {
		return fmt.Sprintf("%d minutes", mins)
	}
	return d.String()
}

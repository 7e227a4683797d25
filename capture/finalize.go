package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chat-scribe/telemetry"
)

// StopReason records why a session was finalized.
type StopReason string

const (
	ReasonExplicit StopReason = "explicit"
	ReasonIdle     StopReason = "idle"
	ReasonBatch    StopReason = "batch"
)

// Summarizer produces a summary of a transcript. ok=false means no summary is available and
// is never treated as fatal.
type Summarizer interface {
	Summarize(ctx context.Context, channelName string, records []Record) (Summary, bool)
}

// Artifact is one rendered output file.
type Artifact struct {
	Name string
	Body []byte
}

// Deliverer hands artifacts to their destination and releases any transient storage it used,
// whether or not delivery succeeded.
type Deliverer interface {
	Deliver(ctx context.Context, channelID, content string, artifacts []Artifact) error
}

// Notifier posts short status messages to a channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, text string) (string, error)
	Retract(ctx context.Context, channelID, messageID string) error
	Mention(channelID string) string
}

// Run is the metadata of one finalization, kept by the capture ledger.
type Run struct {
	ID              uuid.UUID
	ChannelID       string
	ChannelName     string
	Mode            Mode
	Reason          StopReason
	Messages        int
	WindowStart     time.Time
	WindowEnd       time.Time
	SummaryProvider string
	SummaryModel    string
	Delivered       bool
	Target          string
	Error           string
}

// RunRecorder persists run metadata. Failures are logged only.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Report describes the outcome of a finalization.
type Report struct {
	RunID      uuid.UUID
	Messages   int
	Empty      bool
	Summarized bool
	Delivered  bool
	Target     string
}

// Finalizer turns a removed session into transcript and summary artifacts and delivers them.
type Finalizer struct {
	Notifier   Notifier
	Deliverer  Deliverer
	Summarizer Summarizer // optional
	Ledger     RunRecorder
	Location   *time.Location
	Now        func() time.Time
}

func (f *Finalizer) now() time.Time {
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	if f.Location != nil {
		now = now.In(f.Location)
	}
	return now
}

// Finalize runs the stop path for a session that is no longer in the live store. target
// defaults to the session's channel.
func (f *Finalizer) Finalize(ctx context.Context, sess *Session, target string, reason StopReason) (Report, error) {
	runID := uuid.New()
	ctx = telemetry.WithCorrelation(ctx, runID.String())
	ctx, span := telemetry.StartSpan(ctx, "capture", "finalize", telemetry.ChannelAttr(sess.ChannelID), telemetry.ReasonAttr(string(reason)))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "capture_finalize"), slog.String("channel", sess.ChannelID), slog.String("reason", string(reason)))
	start := time.Now()
	defer func() { telemetry.ObserveFinalize(time.Since(start)) }()

	if target == "" {
		target = sess.ChannelID
	}
	report := Report{RunID: runID, Target: target}
	records := sess.Messages()
	report.Messages = len(records)
	telemetry.IncSessionsFinalized(string(reason))

	if len(records) == 0 {
		report.Empty = true
		f.notify(ctx, sess.ChannelID, "No messages were recorded during this session.")
		logger.Info("empty session discarded")
		return report, nil
	}

	end := f.now()
	transcript := Transcript{
		ChannelName: sess.ChannelName,
		Start:       records[0].Timestamp,
		End:         end,
		Backtrack:   sess.Backtrack(),
		Records:     records,
	}
	artifacts := []Artifact{{Name: ArtifactName("record", sess.ChannelName, end), Body: transcript.Render()}}

	run := Run{
		ID:          runID,
		ChannelID:   sess.ChannelID,
		ChannelName: sess.ChannelName,
		Mode:        sess.Mode,
		Reason:      reason,
		Messages:    len(records),
		WindowStart: transcript.Start,
		WindowEnd:   end,
		Target:      target,
	}

	if sess.SummaryEnabled && f.Summarizer != nil {
		if summary, ok := f.summarize(ctx, sess, records); ok {
			artifacts = append(artifacts, Artifact{Name: ArtifactName("summary", sess.ChannelName, end), Body: RenderSummary(sess.ChannelName, summary)})
			report.Summarized = true
			run.SummaryProvider = summary.Provider
			run.SummaryModel = summary.Model
		} else {
			f.notify(ctx, sess.ChannelID, "The AI summary is currently unavailable; delivering the transcript only.")
		}
	}

	content := fmt.Sprintf("Recording finished, %d messages.", len(records))
	err := f.Deliverer.Deliver(ctx, target, content, artifacts)
	if err != nil {
		telemetry.IncDeliveryFailures()
		telemetry.RecordError(span, err)
		run.Error = err.Error()
		logger.Error("artifact delivery failed", slog.Any("err", err))
		f.notify(ctx, sess.ChannelID, fmt.Sprintf("Failed to deliver the transcript: %v", err))
		err = fmt.Errorf("deliver artifacts: %w", err)
	} else {
		report.Delivered = true
		run.Delivered = true
		if target != sess.ChannelID && f.Notifier != nil {
			f.notify(ctx, sess.ChannelID, fmt.Sprintf("Recording finished, transcript delivered to %s.", f.Notifier.Mention(target)))
		}
		telemetry.SetSpanSuccess(span)
		logger.Info("session finalized", slog.Int("messages", len(records)), slog.Bool("summary", report.Summarized), slog.String("target", target))
	}

	if f.Ledger != nil {
		if lerr := f.Ledger.RecordRun(ctx, run); lerr != nil {
			logger.Warn("ledger record failed", slog.Any("err", lerr))
		}
	}
	return report, err
}

// summarize runs the summarizer behind a transient "in progress" notice.
func (f *Finalizer) summarize(ctx context.Context, sess *Session, records []Record) (Summary, bool) {
	noticeID := f.notify(ctx, sess.ChannelID, "Generating the AI summary, please wait...")
	summary, ok := f.Summarizer.Summarize(ctx, sess.ChannelName, records)
	if noticeID != "" && f.Notifier != nil {
		if err := f.Notifier.Retract(ctx, sess.ChannelID, noticeID); err != nil {
			slog.Debug("failed to delete summary notice", slog.Any("err", err), slog.String("channel", sess.ChannelID))
		}
	}
	return summary, ok
}

func (f *Finalizer) notify(ctx context.Context, channelID, text string) string {
	if f.Notifier == nil {
		return ""
	}
	id, err := f.Notifier.Notify(ctx, channelID, text)
	if err != nil {
		slog.Warn("channel notice failed", slog.Any("err", err), slog.String("channel", channelID))
		return ""
	}
	return id
}

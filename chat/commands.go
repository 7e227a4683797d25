package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/platform"
)

// ParseDirective converts command options into a start directive. Malformed numbers and
// booleans are reported as warnings and otherwise ignored.
func ParseDirective(opts map[string]string) (capture.Directive, []string) {
	d := capture.Directive{
		AfterID:   strings.TrimSpace(opts["after_message_id"]),
		BeforeID:  strings.TrimSpace(opts["before_message_id"]),
		StartTime: strings.TrimSpace(opts["start_time"]),
		EndTime:   strings.TrimSpace(opts["end_time"]),
		Summary:   true,
	}
	var warns []string
	atoi := func(field string, dst *int) {
		v := strings.TrimSpace(opts[field])
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			warns = append(warns, (&capture.ValidationError{Field: field, Value: v, Reason: "not a whole number"}).Error())
			return
		}
		*dst = n
	}
	atoi("limit", &d.Limit)
	atoi("minutes", &d.Minutes)
	if v := strings.TrimSpace(opts["summary"]); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			warns = append(warns, (&capture.ValidationError{Field: "summary", Value: v, Reason: "expected true or false"}).Error())
		} else {
			d.Summary = on
		}
	}
	return d, warns
}

func (b *Bridge) record(ctx context.Context, cmd *platform.Command) {
	d, warns := ParseDirective(cmd.Options)
	name := b.channelName(ctx, cmd.ChannelID)
	req := capture.StartRequest{ChannelID: cmd.ChannelID, ChannelName: name, Directive: d}
	if d.Mode() == capture.ModeBatch {
		b.export(ctx, cmd, req, warns)
		return
	}

	res, err := b.Manager.Start(ctx, req)
	if errors.Is(err, capture.ErrAlreadyActive) {
		b.reply(ctx, cmd, "This channel is already being recorded!", true)
		return
	}
	if err != nil {
		b.reply(ctx, cmd, fmt.Sprintf("Could not start recording: %v", err), true)
		return
	}
	warns = append(warns, res.Warnings...)

	started := "Recording started!"
	if !d.Summary {
		started += " (AI summary off)"
	}
	b.reply(ctx, cmd, withWarnings(started, warns), false)

	if res.Backfill != nil {
		select {
		case r, ok := <-res.Backfill:
			if ok && r.Err != nil {
				notice := fmt.Sprintf("Warning: could not load earlier messages (%v). Live recording continues.", r.Err)
				if _, err := b.Client.SendMessage(ctx, cmd.ChannelID, notice); err != nil {
					slog.Warn("backfill failure notice not sent", slog.String("channel", cmd.ChannelID), slog.Any("err", err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
	b.edit(ctx, cmd, b.recordingStatus(name, res.Session, warns))
}

func (b *Bridge) recordingStatus(name string, sess *capture.Session, warns []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Recording the conversation in `%s`", name)
	if !sess.SummaryEnabled {
		sb.WriteString(" (AI summary off)")
	}
	sb.WriteString(".\n")
	if bt := sess.Backtrack(); bt != "" {
		fmt.Fprintf(&sb, "History: %s\n", bt)
	}
	for _, w := range warns {
		fmt.Fprintf(&sb, "Warning: %s\n", w)
	}
	stop := b.StopCommand
	if stop == "" {
		stop = "/stop"
	}
	fmt.Fprintf(&sb, "Use %s to finish and save. Recording stops automatically after %s of inactivity.", stop, minutes(b.Manager.IdleTimeout))
	return sb.String()
}

func (b *Bridge) export(ctx context.Context, cmd *platform.Command, req capture.StartRequest, warns []string) {
	b.reply(ctx, cmd, withWarnings("Exporting messages...", warns), false)
	res, err := b.Manager.Export(ctx, req, "")
	warns = append(warns, res.Warnings...)
	var status string
	switch {
	case res.Report.Empty:
		status = "Export finished: no messages in the requested window."
	case err != nil:
		status = fmt.Sprintf("Export failed: %v", err)
	default:
		status = fmt.Sprintf("Export finished, %d messages.", res.Report.Messages)
	}
	if res.FetchErr != nil {
		warns = append(warns, fmt.Sprintf("history fetch stopped early: %v", res.FetchErr))
	}
	b.edit(ctx, cmd, withWarnings(status, warns))
}

func (b *Bridge) stop(ctx context.Context, cmd *platform.Command) {
	if _, ok := b.Manager.Store.Get(cmd.ChannelID); !ok {
		b.reply(ctx, cmd, "This channel is not being recorded.", true)
		return
	}
	b.reply(ctx, cmd, "Processing the recording...", true)
	_, err := b.Manager.Stop(ctx, cmd.ChannelID, strings.TrimSpace(cmd.Options["target_channel"]))
	switch {
	case errors.Is(err, capture.ErrNotRecording):
		// lost the race with the idle sweep, which finalizes on its own
		b.edit(ctx, cmd, "This channel is not being recorded.")
	case err != nil:
		b.edit(ctx, cmd, fmt.Sprintf("Saving failed: %v", err))
	}
}

func (b *Bridge) say(ctx context.Context, cmd *platform.Command) {
	text := strings.TrimSpace(cmd.Options["message"])
	if text == "" {
		b.reply(ctx, cmd, "Nothing to say.", true)
		return
	}
	if strings.Contains(text, "@everyone") || strings.Contains(text, "@here") {
		b.reply(ctx, cmd, "Mass mentions are not allowed!", true)
		return
	}
	b.reply(ctx, cmd, "Message sent.", true)
	if _, err := b.Client.SendMessage(ctx, cmd.ChannelID, text); err != nil {
		slog.Warn("say failed", slog.String("channel", cmd.ChannelID), slog.Any("err", err))
	}
}

func withWarnings(head string, warns []string) string {
	if len(warns) == 0 {
		return head
	}
	return head + "\nWarning: " + strings.Join(warns, "\nWarning: ")
}

func minutes(d time.Duration) string {
	if n := int(d / time.Minute); n == 1 {
		return "1 minute"
	} else if n > 0 {
		return fmt.Sprintf("%d minutes", n)
	}
	return d.String()
}

package capture

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeEmptySessionDeliversNothing(t *testing.T) {
	h := newHarness(at("10:00"))
	sess := NewSession("chan-1", "general", ModeLive, at("10:00"), true)

	rep, err := h.manager.Finalizer.Finalize(context.Background(), sess, "", ReasonExplicit)
	require.NoError(t, err)
	assert.True(t, rep.Empty)
	assert.Zero(t, h.deliver.count())
	assert.Zero(t, h.summary.calls)
	assert.Equal(t, []string{"No messages were recorded during this session."}, h.notifier.all())
	assert.Empty(t, h.ledger.runs)
}

func TestFinalizeWithSummary(t *testing.T) {
	h := newHarness(at("10:10"))
	sess := NewSession("chan-1", "gen/eral", ModeLive, at("10:00"), true)
	require.NoError(t, sess.appendLive(rec("1", at("10:01")), at("10:01")))
	require.NoError(t, sess.appendLive(rec("2", at("10:02")), at("10:02")))

	rep, err := h.manager.Finalizer.Finalize(context.Background(), sess, "", ReasonExplicit)
	require.NoError(t, err)
	assert.True(t, rep.Delivered)
	assert.True(t, rep.Summarized)
	assert.Equal(t, 2, rep.Messages)

	require.Equal(t, 1, h.deliver.count())
	call := h.deliver.calls[0]
	assert.Equal(t, "chan-1", call.channelID)
	assert.Equal(t, "Recording finished, 2 messages.", call.content)
	require.Len(t, call.artifacts, 2)
	assert.Equal(t, "record_gen_eral_20240501_101000.md", call.artifacts[0].Name)
	assert.Equal(t, "summary_gen_eral_20240501_101000.md", call.artifacts[1].Name)
	assert.True(t, strings.HasPrefix(string(call.artifacts[0].Body), "# Chat transcript\n**Channel**: gen/eral\n**Start time**: 2024-05-01 10:01:00\n"))
	assert.Contains(t, string(call.artifacts[1].Body), "2 messages discussed")

	// the in-progress notice is removed once the summary is done
	assert.Equal(t, []string{"Generating the AI summary, please wait..."}, h.notifier.all())
	assert.Equal(t, []string{"notice-1"}, h.notifier.retract)

	require.Len(t, h.ledger.runs, 1)
	run := h.ledger.runs[0]
	assert.Equal(t, rep.RunID, run.ID)
	assert.Equal(t, "fake", run.SummaryProvider)
	assert.True(t, run.Delivered)
}

func TestFinalizeSummaryUnavailableStillDelivers(t *testing.T) {
	h := newHarness(at("10:10"))
	h.summary.ok = false
	sess := NewSession("chan-1", "general", ModeLive, at("10:00"), true)
	require.NoError(t, sess.appendLive(rec("1", at("10:01")), at("10:01")))

	rep, err := h.manager.Finalizer.Finalize(context.Background(), sess, "", ReasonIdle)
	require.NoError(t, err)
	assert.False(t, rep.Summarized)
	require.Len(t, h.deliver.calls[0].artifacts, 1)
	assert.Contains(t, h.notifier.all(), "The AI summary is currently unavailable; delivering the transcript only.")
}

func TestFinalizeSummaryDisabled(t *testing.T) {
	h := newHarness(at("10:10"))
	sess := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	require.NoError(t, sess.appendLive(rec("1", at("10:01")), at("10:01")))

	_, err := h.manager.Finalizer.Finalize(context.Background(), sess, "", ReasonExplicit)
	require.NoError(t, err)
	assert.Zero(t, h.summary.calls)
	assert.Empty(t, h.notifier.all())
}

func TestFinalizeRedirectedTarget(t *testing.T) {
	h := newHarness(at("10:10"))
	sess := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	require.NoError(t, sess.appendLive(rec("1", at("10:01")), at("10:01")))

	rep, err := h.manager.Finalizer.Finalize(context.Background(), sess, "archive", ReasonExplicit)
	require.NoError(t, err)
	assert.Equal(t, "archive", rep.Target)
	assert.Equal(t, "archive", h.deliver.calls[0].channelID)
	assert.Equal(t, []string{"Recording finished, transcript delivered to <#archive>."}, h.notifier.all())
}

func TestFinalizeDeliveryFailure(t *testing.T) {
	h := newHarness(at("10:10"))
	h.deliver.err = errBoom
	sess := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	require.NoError(t, sess.appendLive(rec("1", at("10:01")), at("10:01")))

	rep, err := h.manager.Finalizer.Finalize(context.Background(), sess, "", ReasonExplicit)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, rep.Delivered)
	assert.Equal(t, []string{"Failed to deliver the transcript: boom"}, h.notifier.all())
	require.Len(t, h.ledger.runs, 1)
	assert.Equal(t, "boom", h.ledger.runs[0].Error)
	assert.False(t, h.ledger.runs[0].Delivered)
}

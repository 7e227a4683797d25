package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/delivery"
	"github.com/onnwee/chat-scribe/platform"
	"github.com/onnwee/chat-scribe/testutil"
)

var loc = time.FixedZone("UTC+8", 8*3600)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, loc)

var roles = []string{"社群管理員", "團長", "管理員"}

func newBridge(t *testing.T) (*Bridge, *testutil.FakePlatform) {
	t.Helper()
	fp := testutil.NewFakePlatform("bot")
	fp.Names["chan-1"] = "general"
	notifier := &delivery.ClientNotifier{Client: fp}
	fin := &capture.Finalizer{
		Notifier:  notifier,
		Deliverer: &delivery.ChannelDelivery{Client: fp, TempDir: t.TempDir()},
		Location:  loc,
		Now:       func() time.Time { return now.Add(10 * time.Minute) },
	}
	m := capture.NewManager(context.Background(), capture.NewStore(), &capture.Merger{Client: fp, Location: loc}, fin, notifier)
	m.Now = func() time.Time { return now }
	m.SelfID = "bot"
	t.Cleanup(m.Wait)
	return &Bridge{Manager: m, Client: fp, Source: fp, Permission: Permission{Roles: roles}}, fp
}

func command(name string, opts map[string]string, roles ...string) (*platform.Command, *testutil.FakeResponder) {
	r := &testutil.FakeResponder{}
	return &platform.Command{
		Name:      name,
		ChannelID: "chan-1",
		Invoker:   platform.Author{ID: "u-mod", Handle: "mod", Roles: roles},
		Options:   opts,
		Reply:     r,
	}, r
}

func chatMsg(id, author, content string, ts time.Time) platform.Message {
	return platform.Message{ID: id, ChannelID: "chan-1", Author: platform.Author{ID: author, DisplayName: author}, Content: content, CreatedAt: ts}
}

func TestPermission(t *testing.T) {
	p := Permission{Roles: roles}
	tests := []struct {
		name   string
		author platform.Author
		want   bool
	}{
		{"allowed role", platform.Author{Roles: []string{"member", "管理員"}}, true},
		{"no roles", platform.Author{}, false},
		{"other roles", platform.Author{Roles: []string{"member"}}, false},
		{"direct message with role", platform.Author{Roles: []string{"團長"}, Direct: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Allows(tt.author))
		})
	}

	assert.Contains(t, p.Denial(platform.Author{}), "**社群管理員**, **團長**, **管理員**")
	assert.Equal(t, "Commands can only be used in a server channel.", p.Denial(platform.Author{Direct: true}))
}

func TestParseDirective(t *testing.T) {
	d, warns := ParseDirective(map[string]string{"limit": "20", "minutes": "abc", "summary": "false", "after_message_id": " 1000 "})
	assert.Equal(t, 20, d.Limit)
	assert.Zero(t, d.Minutes)
	assert.False(t, d.Summary)
	assert.Equal(t, "1000", d.AfterID)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "minutes")

	d, warns = ParseDirective(nil)
	assert.True(t, d.Summary)
	assert.Empty(t, warns)
	assert.Equal(t, capture.ModeLive, d.Mode())

	d, _ = ParseDirective(map[string]string{"end_time": "2024-05-01 11:00"})
	assert.Equal(t, capture.ModeBatch, d.Mode())
}

func TestDeniedCommandRepliesEphemerally(t *testing.T) {
	b, _ := newBridge(t)
	cmd, r := command("record", nil, "member")
	b.Handle(context.Background(), cmd)

	replies, _ := r.Snapshot()
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "Sorry, you need one of these roles"))
	assert.Equal(t, []bool{true}, r.Ephemeral)
	_, active := b.Manager.Store.Get("chan-1")
	assert.False(t, active)
}

func TestRecordIngestStop(t *testing.T) {
	b, fp := newBridge(t)
	ctx := context.Background()

	cmd, r := command("record", map[string]string{"summary": "false"}, "管理員")
	b.Handle(ctx, cmd)
	replies, edits := r.Snapshot()
	require.Len(t, replies, 1)
	assert.Equal(t, "Recording started! (AI summary off)", replies[0])
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0], "Recording the conversation in `general` (AI summary off).")
	assert.Contains(t, edits[0], "Use /stop to finish and save. Recording stops automatically after 30 minutes of inactivity.")

	again, r2 := command("record", nil, "管理員")
	b.Handle(ctx, again)
	replies, _ = r2.Snapshot()
	assert.Equal(t, []string{"This channel is already being recorded!"}, replies)

	b.ingest(chatMsg("1", "alice", "hello", now.Add(time.Minute)))
	b.ingest(chatMsg("2", "bot", "I am the bot", now.Add(2*time.Minute)))
	b.ingest(platform.Message{ID: "3", ChannelID: "elsewhere", Author: platform.Author{ID: "bob"}, Content: "ignored", CreatedAt: now})

	stop, rs := command("stop", nil, "管理員")
	b.Handle(ctx, stop)
	replies, _ = rs.Snapshot()
	assert.Equal(t, []string{"Processing the recording..."}, replies)

	ups := fp.Uploads()
	require.Len(t, ups, 1)
	assert.Equal(t, "chan-1", ups[0].ChannelID)
	assert.Equal(t, "Recording finished, 1 messages.", ups[0].Content)
	require.Len(t, ups[0].Files, 1, "summary disabled, transcript only")
	body := string(ups[0].Files[0].Body)
	assert.Contains(t, body, "hello")
	assert.NotContains(t, body, "I am the bot")

	stop2, rs2 := command("stop", nil, "管理員")
	b.Handle(ctx, stop2)
	replies, _ = rs2.Snapshot()
	assert.Equal(t, []string{"This channel is not being recorded."}, replies)
}

func TestRecordBackfillFailureNotifiesChannel(t *testing.T) {
	b, fp := newBridge(t)
	fp.HistoryErr = errors.New("missing access")

	cmd, r := command("record", map[string]string{"minutes": "15"}, "團長")
	b.Handle(context.Background(), cmd)

	_, edits := r.Snapshot()
	require.Len(t, edits, 1)
	var notices []string
	for _, m := range fp.Sent() {
		notices = append(notices, m.Content)
	}
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "could not load earlier messages")
	_, active := b.Manager.Store.Get("chan-1")
	assert.True(t, active, "recording continues after a failed backfill")
}

func TestRecordWithBackfillReportsHistory(t *testing.T) {
	b, fp := newBridge(t)
	fp.History = []platform.Message{
		chatMsg("12", "bob", "second", now.Add(-5*time.Minute)),
		chatMsg("11", "alice", "first", now.Add(-10*time.Minute)),
	}
	cmd, r := command("record", map[string]string{"limit": "5"}, "團長")
	b.Handle(context.Background(), cmd)

	_, edits := r.Snapshot()
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0], "History: up to 5 messages (backfilled 2 messages)")
	sess, ok := b.Manager.Store.Get("chan-1")
	require.True(t, ok)
	assert.Equal(t, 2, sess.Len())
}

func TestRecordWithEndTimeExports(t *testing.T) {
	b, fp := newBridge(t)
	fp.History = []platform.Message{chatMsg("5", "alice", "from the past", now.Add(-time.Hour))}

	cmd, r := command("record", map[string]string{"start_time": "2024-05-01 08:00", "end_time": "2024-05-01 09:30"}, "管理員")
	b.Handle(context.Background(), cmd)

	replies, edits := r.Snapshot()
	assert.Equal(t, []string{"Exporting messages..."}, replies)
	require.Len(t, edits, 1)
	assert.Equal(t, "Export finished, 1 messages.", edits[0])
	require.Len(t, fp.Uploads(), 1)
	_, active := b.Manager.Store.Get("chan-1")
	assert.False(t, active, "exports never register a live session")
}

func TestSay(t *testing.T) {
	b, fp := newBridge(t)
	ctx := context.Background()

	blocked, r := command("say", map[string]string{"message": "hi @everyone"}, "管理員")
	b.Handle(ctx, blocked)
	replies, _ := r.Snapshot()
	assert.Equal(t, []string{"Mass mentions are not allowed!"}, replies)
	assert.Empty(t, fp.Sent())

	ok, r2 := command("say", map[string]string{"message": "welcome everyone"}, "管理員")
	b.Handle(ctx, ok)
	replies, _ = r2.Snapshot()
	assert.Equal(t, []string{"Message sent."}, replies)
	require.Len(t, fp.Sent(), 1)
	assert.Equal(t, "welcome everyone", fp.Sent()[0].Content)
}

func TestRunDispatchesUntilSourceCloses(t *testing.T) {
	b, fp := newBridge(t)
	cmd, r := command("record", nil, "管理員")
	fp.Emit(platform.Event{Kind: platform.EventCommand, Command: cmd})

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, edits := r.Snapshot()
		return len(edits) == 1
	}, time.Second, 5*time.Millisecond)

	fp.Emit(platform.Event{Kind: platform.EventMessage, Message: chatMsg("1", "alice", "hello", now.Add(time.Minute))})
	require.Eventually(t, func() bool {
		sess, ok := b.Manager.Store.Get("chan-1")
		return ok && sess.Len() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, fp.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the source closed")
	}
}

package discord

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/chat-scribe/platform"
)

func TestSnowflakeRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	id := SnowflakeAt(at)
	got, err := SnowflakeTime(id)
	require.NoError(t, err)
	assert.True(t, got.Equal(at), "got %s", got)

	assert.Equal(t, "0", SnowflakeAt(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)))
	_, err = SnowflakeTime("not-a-number")
	assert.Error(t, err)
}

func TestSnowflakeLessComparesNumerically(t *testing.T) {
	assert.True(t, snowflakeLess("999", "1000"))
	assert.False(t, snowflakeLess("1000", "999"))
	assert.True(t, snowflakeLess("1001", "1002"))
	assert.False(t, snowflakeLess("1002", "1002"))
}

func fakeChannel(ids ...int) map[string]*discordgo.Message {
	out := make(map[string]*discordgo.Message, len(ids))
	for _, id := range ids {
		s := fmt.Sprint(id)
		out[s] = &discordgo.Message{ID: s, ChannelID: "c", Content: "m" + s, Author: &discordgo.User{ID: "u", Username: "u"}, GuildID: "g"}
	}
	return out
}

// pager mimics the REST endpoint: newest first, strictly after/before the cursor.
func pager(msgs map[string]*discordgo.Message, calls *int) pageFunc {
	return func(before, after string, n int) ([]*discordgo.Message, error) {
		*calls++
		var ids []int
		for id := range msgs {
			var v int
			fmt.Sscan(id, &v)
			ids = append(ids, v)
		}
		// sort descending
		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				if ids[j] > ids[i] {
					ids[i], ids[j] = ids[j], ids[i]
				}
			}
		}
		var sel []int
		if after != "" {
			var a int
			fmt.Sscan(after, &a)
			for i := len(ids) - 1; i >= 0 && len(sel) < n; i-- {
				if ids[i] > a {
					sel = append(sel, ids[i])
				}
			}
			// newest first
			for i, j := 0, len(sel)-1; i < j; i, j = i+1, j-1 {
				sel[i], sel[j] = sel[j], sel[i]
			}
		} else {
			b := int(^uint(0) >> 1)
			if before != "" {
				fmt.Sscan(before, &b)
			}
			for _, id := range ids {
				if id < b && len(sel) < n {
					sel = append(sel, id)
				}
			}
		}
		out := make([]*discordgo.Message, 0, len(sel))
		for _, id := range sel {
			out = append(out, msgs[fmt.Sprint(id)])
		}
		return out, nil
	}
}

func TestCollectForwardOrdersAscendingAndStopsAtUpperBound(t *testing.T) {
	var calls int
	got, err := collectForward(pager(fakeChannel(1001, 1002, 1003, 1004, 1005), &calls), "1001", "1005", 100)
	require.NoError(t, err)
	var ids []string
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"1002", "1003", "1004"}, ids)
}

func TestCollectForwardPagesUntilLimit(t *testing.T) {
	var ids []int
	for i := 1; i <= 250; i++ {
		ids = append(ids, 5000+i)
	}
	var calls int
	got, err := collectForward(pager(fakeChannel(ids...), &calls), "5000", "", 230)
	require.NoError(t, err)
	require.Len(t, got, 230)
	assert.Equal(t, "5001", got[0].ID)
	assert.Equal(t, "5230", got[229].ID)
	assert.Equal(t, 3, calls)
}

func TestCollectBackwardNewestFirst(t *testing.T) {
	var calls int
	got, err := collectBackward(pager(fakeChannel(1, 2, 3, 4), &calls), "4", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestCollectReturnsPartialOnError(t *testing.T) {
	boom := errors.New("discord 500")
	first := true
	page := func(before, after string, n int) ([]*discordgo.Message, error) {
		if first {
			first = false
			msgs := make([]*discordgo.Message, n)
			for i := range msgs {
				msgs[i] = &discordgo.Message{ID: fmt.Sprint(100 - i), Author: &discordgo.User{ID: "u"}}
			}
			return msgs, nil
		}
		return nil, boom
	}
	got, err := collectBackward(page, "", 150)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, got, 100)
}

func TestOptionValues(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "limit", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(20)},
		{Name: "summary", Type: discordgo.ApplicationCommandOptionBoolean, Value: false},
		{Name: "start_time", Type: discordgo.ApplicationCommandOptionString, Value: "2024-05-01 10:00"},
		{Name: "target_channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "123456"},
	}
	assert.Equal(t, map[string]string{
		"limit":          "20",
		"summary":        "false",
		"start_time":     "2024-05-01 10:00",
		"target_channel": "123456",
	}, optionValues(opts))
}

func TestToMessageDisplayName(t *testing.T) {
	ts := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	m := toMessage(&discordgo.Message{
		ID: "1", ChannelID: "c", GuildID: "g", Content: "hi", Timestamp: ts,
		Author:      &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice A"},
		Member:      &discordgo.Member{Nick: "Ally"},
		Attachments: []*discordgo.MessageAttachment{{Filename: "a.png", URL: "https://cdn/a.png"}},
	})
	assert.Equal(t, "Ally", m.Author.DisplayName)
	assert.Equal(t, "alice", m.Author.Handle)
	assert.False(t, m.Author.Direct)
	assert.True(t, m.CreatedAt.Equal(ts))
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "a.png", m.Attachments[0].Filename)

	dm := toMessage(&discordgo.Message{ID: "2", Author: &discordgo.User{ID: "u2", Username: "bob"}})
	assert.Equal(t, "bob", dm.Author.DisplayName)
	assert.True(t, dm.Author.Direct)
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range Commands() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"record", "stop", "say"}, names)
}

func newOfflineAdapter(t *testing.T) (*Adapter, *int) {
	t.Helper()
	a, err := New("test-token", "guild-1")
	require.NoError(t, err)
	closes := 0
	a.connect = func() error { return nil }
	a.disconnect = func() error { closes++; return nil }
	return a, &closes
}

func TestCloseUnblocksPendingEmit(t *testing.T) {
	a, _ := newOfflineAdapter(t)
	a.events = make(chan platform.Event, 1)
	a.emit(platform.Event{Kind: platform.EventMessage, Message: platform.Message{ID: "1"}})

	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		a.emit(platform.Event{Kind: platform.EventMessage, Message: platform.Message{ID: "2"}})
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- a.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a full event buffer")
	}
	<-emitted

	ev, ok := <-a.Events()
	require.True(t, ok)
	assert.Equal(t, "1", ev.Message.ID)
	_, ok = <-a.Events()
	assert.False(t, ok, "events channel is closed")

	// emits after Close are dropped
	a.emit(platform.Event{Kind: platform.EventMessage})
	require.NoError(t, a.Close())
}

func TestOpenClosesSessionWhenRegistrationFails(t *testing.T) {
	a, closes := newOfflineAdapter(t)
	a.register = func(context.Context) (int, error) { return 0, errors.New("missing access") }

	err := a.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register slash commands")
	assert.Equal(t, 1, *closes)
}

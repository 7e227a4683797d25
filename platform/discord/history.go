package discord

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chat-scribe/platform"
)

// discordEpoch is the first millisecond of 2015, the origin of Discord snowflakes.
const discordEpoch = 1420070400000

const pageSize = 100

// SnowflakeAt returns the smallest snowflake that could have been created at t.
func SnowflakeAt(t time.Time) string {
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatUint(uint64(ms)<<22, 10)
}

// SnowflakeTime returns the creation time encoded in a snowflake.
func SnowflakeTime(id string) (time.Time, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snowflake %q: %w", id, err)
	}
	return time.UnixMilli(int64(n>>22) + discordEpoch), nil
}

func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// FetchHistory pages through the channel. Anchored queries walk forward from the lower bound;
// otherwise the newest messages before the upper bound are returned, newest first.
func (a *Adapter) FetchHistory(ctx context.Context, q platform.HistoryQuery) ([]platform.Message, error) {
	lower := q.AfterID
	if lower == "" && !q.After.IsZero() {
		lower = SnowflakeAt(q.After)
	}
	upper := q.BeforeID
	if upper == "" && !q.Before.IsZero() {
		upper = SnowflakeAt(q.Before)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = pageSize
	}
	page := func(before, after string, n int) ([]*discordgo.Message, error) {
		return a.session.ChannelMessages(q.ChannelID, n, before, after, "", discordgo.WithContext(ctx))
	}
	if q.OldestFirst || lower != "" {
		return collectForward(page, lower, upper, limit)
	}
	return collectBackward(page, upper, limit)
}

type pageFunc func(before, after string, n int) ([]*discordgo.Message, error)

func collectForward(page pageFunc, cursor, upper string, limit int) ([]platform.Message, error) {
	var out []platform.Message
	for len(out) < limit {
		n := min(pageSize, limit-len(out))
		batch, err := page("", cursor, n)
		if err != nil {
			return out, err
		}
		// Discord returns newest first even for after= queries
		slices.SortFunc(batch, func(x, y *discordgo.Message) int {
			if snowflakeLess(x.ID, y.ID) {
				return -1
			}
			return 1
		})
		for _, m := range batch {
			if upper != "" && !snowflakeLess(m.ID, upper) {
				return out, nil
			}
			out = append(out, toMessage(m))
			cursor = m.ID
		}
		if len(batch) < n {
			break
		}
	}
	return out, nil
}

func collectBackward(page pageFunc, cursor string, limit int) ([]platform.Message, error) {
	var out []platform.Message
	for len(out) < limit {
		n := min(pageSize, limit-len(out))
		batch, err := page(cursor, "", n)
		if err != nil {
			return out, err
		}
		for _, m := range batch {
			out = append(out, toMessage(m))
			cursor = m.ID
		}
		if len(batch) < n {
			break
		}
	}
	return out, nil
}

package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendLiveKeepsTimestampOrder(t *testing.T) {
	s := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	for _, r := range []Record{rec("3", at("10:03")), rec("1", at("10:01")), rec("2", at("10:02")), rec("4", at("10:02"))} {
		require.NoError(t, s.appendLive(r, at("10:05")))
	}
	got := s.Messages()
	require.Len(t, got, 4)
	ids := []string{got[0].MessageID, got[1].MessageID, got[2].MessageID, got[3].MessageID}
	// equal timestamps keep arrival order
	assert.Equal(t, []string{"1", "2", "4", "3"}, ids)
}

func TestAppendLiveIgnoresDuplicates(t *testing.T) {
	s := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	require.NoError(t, s.appendLive(rec("1", at("10:01")), at("10:01")))
	require.NoError(t, s.appendLive(rec("1", at("10:01")), at("10:02")))
	assert.Equal(t, 1, s.Len())
	assertTime(t, at("10:02"), s.LastActive())
}

func TestLastActiveNeverMovesBackwards(t *testing.T) {
	s := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	require.NoError(t, s.appendLive(rec("1", at("10:05")), at("10:05")))
	require.NoError(t, s.appendLive(rec("2", at("10:01")), at("10:01")))
	assertTime(t, at("10:05"), s.LastActive())
}

func TestClosedSessionRejectsAppends(t *testing.T) {
	s := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	s.close()
	assert.ErrorIs(t, s.appendLive(rec("1", at("10:01")), at("10:01")), ErrNotRecording)
}

func TestCompleteBackfillPutsHistoryFirstAndDropsDuplicates(t *testing.T) {
	s := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	s.beginBackfill()
	// live messages arriving while the fetch is in flight
	require.NoError(t, s.appendLive(rec("9", at("09:59")), at("10:00")))
	require.NoError(t, s.appendLive(rec("10", at("10:01")), at("10:01")))
	assert.Equal(t, 2, s.Len())

	added, ok := s.completeBackfill([]Record{rec("7", at("09:50")), rec("8", at("09:55")), rec("9", at("09:59"))})
	require.True(t, ok)
	assert.Equal(t, 3, added)

	got := s.Messages()
	require.Len(t, got, 4)
	assert.Equal(t, "7", got[0].MessageID)
	assert.Equal(t, "8", got[1].MessageID)
	assert.Equal(t, "9", got[2].MessageID)
	assert.Equal(t, "10", got[3].MessageID)

	// the backfilled id is now known, so a late live echo is dropped
	require.NoError(t, s.appendLive(rec("8", at("09:55")), at("10:02")))
	assert.Equal(t, 4, s.Len())
}

func TestBackfillAfterCloseIsDiscarded(t *testing.T) {
	s := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	s.beginBackfill()
	require.NoError(t, s.appendLive(rec("1", at("10:01")), at("10:01")))
	s.close()

	added, ok := s.completeBackfill([]Record{rec("0", at("09:00"))})
	assert.False(t, ok)
	assert.Zero(t, added)
	got := s.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].MessageID)
}

func TestConcurrentAppendsStayOrdered(t *testing.T) {
	s := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := at("10:00").Add(time.Duration(i%7) * time.Second)
			_ = s.appendLive(Record{MessageID: string(rune('a'+i%26)) + string(rune('0'+i/26)), Timestamp: ts}, ts)
		}(i)
	}
	wg.Wait()
	got := s.Messages()
	require.Len(t, got, 50)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp), "position %d out of order", i)
	}
}

func TestIdleSince(t *testing.T) {
	s := NewSession("chan-1", "general", ModeLive, at("10:00"), false)
	assert.False(t, s.idleSince(at("10:30"), 30*time.Minute), "exactly at the threshold is not idle")
	assert.True(t, s.idleSince(at("10:31"), 30*time.Minute))
	s.close()
	assert.False(t, s.idleSince(at("11:00"), 30*time.Minute), "closed sessions are never idle")
}

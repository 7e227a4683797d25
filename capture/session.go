package capture

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Mode selects open-ended live monitoring or a bounded one-shot export.
type Mode int

const (
	ModeLive Mode = iota
	ModeBatch
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// Session is the recording state of one channel.
type Session struct {
	ChannelID      string
	ChannelName    string
	Mode           Mode
	StartedAt      time.Time
	SummaryEnabled bool

	mu          sync.Mutex
	lastActive  time.Time
	messages    []Record
	seen        map[string]struct{}
	backtrack   string
	backfilling bool
	pending     []Record
	closed      bool
	cancel      context.CancelFunc
}

// NewSession returns an empty session. lastActive starts at startedAt so a session that never
// receives a message still expires after the idle threshold.
func NewSession(channelID, channelName string, mode Mode, startedAt time.Time, summary bool) *Session {
	return &Session{
		ChannelID:      channelID,
		ChannelName:    channelName,
		Mode:           mode,
		StartedAt:      startedAt,
		SummaryEnabled: summary,
		lastActive:     startedAt,
		seen:           make(map[string]struct{}),
	}
}

// LastActive returns the time of the most recent live message (or the start time).
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Backtrack returns the human-readable backfill description, if any.
func (s *Session) Backtrack() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backtrack
}

// SetBacktrack replaces the backfill description.
func (s *Session) SetBacktrack(desc string) {
	s.mu.Lock()
	s.backtrack = desc
	s.mu.Unlock()
}

// Len returns the number of recorded messages, including live messages buffered behind a
// pending backfill.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages) + len(s.pending)
}

// Messages returns a chronological copy of the recorded messages. Live messages buffered
// behind a pending backfill are included after the merged ones.
func (s *Session) Messages() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.messages)+len(s.pending))
	out = append(out, s.messages...)
	out = append(out, s.pending...)
	return out
}

// beginBackfill marks the session as awaiting a one-time backfill merge.
func (s *Session) beginBackfill() {
	s.mu.Lock()
	s.backfilling = true
	s.mu.Unlock()
}

// appendLive records a live message. It refreshes lastActive (never moving it backwards) and
// keeps messages ordered by timestamp.
func (s *Session) appendLive(rec Record, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotRecording
	}
	if now.After(s.lastActive) {
		s.lastActive = now
	}
	key := rec.dedupeKey()
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}
	if s.backfilling {
		s.pending = insertSorted(s.pending, rec)
		return nil
	}
	s.messages = insertSorted(s.messages, rec)
	return nil
}

// completeBackfill merges a finished backfill. Backfilled records come first; buffered live
// records follow unless they duplicate a backfilled message. It reports false when the
// session was closed before the backfill finished, in which case the records are discarded.
func (s *Session) completeBackfill(records []Record) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backfilling = false
	if s.closed {
		return 0, false
	}
	fetched := make(map[string]struct{}, len(records))
	merged := make([]Record, 0, len(records)+len(s.pending)+len(s.messages))
	for _, r := range records {
		key := r.dedupeKey()
		if _, dup := fetched[key]; dup {
			continue
		}
		fetched[key] = struct{}{}
		s.seen[key] = struct{}{}
		merged = append(merged, r)
	}
	added := len(merged)
	for _, r := range append(s.messages, s.pending...) {
		if _, dup := fetched[r.dedupeKey()]; dup {
			continue
		}
		merged = append(merged, r)
	}
	slices.SortStableFunc(merged, func(a, b Record) int { return a.Timestamp.Compare(b.Timestamp) })
	s.messages = merged
	s.pending = nil
	return added, true
}

// close marks the session as finished; later appends and backfills are rejected.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	if s.backfilling {
		// an in-flight backfill will be discarded; keep the live messages it was holding back
		s.messages = append(s.messages, s.pending...)
		s.pending = nil
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) idleSince(now time.Time, threshold time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && now.Sub(s.lastActive) > threshold
}

// insertSorted inserts rec after every record whose timestamp is not later than rec's.
func insertSorted(list []Record, rec Record) []Record {
	n := len(list)
	if n == 0 || !rec.Timestamp.Before(list[n-1].Timestamp) {
		return append(list, rec)
	}
	i, _ := slices.BinarySearchFunc(list, rec.Timestamp, func(r Record, t time.Time) int {
		if r.Timestamp.After(t) {
			return 1
		}
		return -1
	})
	return slices.Insert(list, i, rec)
}

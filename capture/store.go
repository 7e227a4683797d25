package capture

import (
	"sort"
	"sync"
	"time"
)

// Store is the registry of live sessions keyed by channel id. The map lock is only held for
// map access; each session serializes its own mutations, so work on one channel never waits
// on another.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty registry.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Start registers a live session.
func (st *Store) Start(sess *Session) error {
	if sess.Mode != ModeLive {
		return ErrBatchSession
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[sess.ChannelID]; ok {
		return ErrAlreadyActive
	}
	st.sessions[sess.ChannelID] = sess
	return nil
}

// Get returns the live session for a channel.
func (st *Store) Get(channelID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[channelID]
	return s, ok
}

// AppendLive records a live message for a tracked channel.
func (st *Store) AppendLive(channelID string, rec Record, now time.Time) error {
	s, ok := st.Get(channelID)
	if !ok {
		return ErrNotRecording
	}
	return s.appendLive(rec, now)
}

// Remove unregisters and closes the channel's session, transferring ownership to the caller.
func (st *Store) Remove(channelID string) (*Session, error) {
	return st.RemoveIf(channelID, nil)
}

// RemoveIf removes the session only when pred (evaluated on the registered session) holds.
// A nil pred always removes.
func (st *Store) RemoveIf(channelID string, pred func(*Session) bool) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[channelID]
	if !ok || (pred != nil && !pred(s)) {
		st.mu.Unlock()
		return nil, ErrNotRecording
	}
	delete(st.sessions, channelID)
	st.mu.Unlock()
	s.close()
	return s, nil
}

// Idle returns a snapshot of channels whose last live activity is older than threshold.
func (st *Store) Idle(now time.Time, threshold time.Duration) []string {
	st.mu.RLock()
	candidates := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		candidates = append(candidates, s)
	}
	st.mu.RUnlock()

	var out []string
	for _, s := range candidates {
		if s.idleSince(now, threshold) {
			out = append(out, s.ChannelID)
		}
	}
	sort.Strings(out)
	return out
}

// SessionInfo is a read-only view of a live session.
type SessionInfo struct {
	ChannelID      string    `json:"channel_id"`
	ChannelName    string    `json:"channel_name"`
	Mode           string    `json:"mode"`
	StartedAt      time.Time `json:"started_at"`
	LastActive     time.Time `json:"last_active"`
	Messages       int       `json:"messages"`
	SummaryEnabled bool      `json:"summary_enabled"`
	Backtrack      string    `json:"backtrack,omitempty"`
}

// Snapshot lists live sessions ordered by channel id.
func (st *Store) Snapshot() []SessionInfo {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ChannelID:      s.ChannelID,
			ChannelName:    s.ChannelName,
			Mode:           s.Mode.String(),
			StartedAt:      s.StartedAt,
			LastActive:     s.LastActive(),
			Messages:       s.Len(),
			SummaryEnabled: s.SummaryEnabled,
			Backtrack:      s.Backtrack(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

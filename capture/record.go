// Package capture implements the capture-session lifecycle: the per-channel registry of live
// sessions, backfill planning and merging, idle detection, and finalization into transcript
// and summary artifacts.
package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/chat-scribe/platform"
)

// TimeLayout is the timestamp format used in transcripts and prompts.
const TimeLayout = "2006-01-02 15:04:05"

// Record is the normalized, immutable form of one chat message.
type Record struct {
	MessageID   string
	DisplayName string
	Handle      string
	AuthorID    string
	Content     string
	Timestamp   time.Time
}

// NewRecord normalizes a platform message. Attachments are appended to the text body as
// markdown links, one per line.
func NewRecord(m platform.Message, loc *time.Location) Record {
	content := m.Content
	if len(m.Attachments) > 0 {
		links := make([]string, 0, len(m.Attachments))
		for _, a := range m.Attachments {
			links = append(links, fmt.Sprintf("[attachment: %s](%s)", a.Filename, a.URL))
		}
		joined := strings.Join(links, "\n")
		if content != "" {
			content += "\n" + joined
		} else {
			content = joined
		}
	}
	display := m.Author.DisplayName
	if display == "" {
		display = m.Author.Handle
	}
	ts := m.CreatedAt
	if loc != nil {
		ts = ts.In(loc)
	}
	return Record{
		MessageID:   m.ID,
		DisplayName: display,
		Handle:      m.Author.Handle,
		AuthorID:    m.Author.ID,
		Content:     content,
		Timestamp:   ts,
	}
}

// dedupeKey identifies the underlying chat message. The platform id wins; without it the
// author/timestamp/content triple is used.
func (r Record) dedupeKey() string {
	if r.MessageID != "" {
		return "id:" + r.MessageID
	}
	return fmt.Sprintf("t:%s|%d|%s", r.AuthorID, r.Timestamp.UnixNano(), r.Content)
}

// Line renders the record as one transcript body line.
func (r Record) Line() string {
	return fmt.Sprintf("- [%s] %s (@%s, ID: %s): %s", r.Timestamp.Format(TimeLayout), r.DisplayName, r.Handle, r.AuthorID, r.Content)
}

package capture

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// SanitizeFilename replaces characters that are not allowed in file names.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// ArtifactName builds "<kind>_<channel>_<YYYYMMDD_HHMMSS>.md".
func ArtifactName(kind, channelName string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.md", kind, SanitizeFilename(channelName), at.Format("20060102_150405"))
}

// Transcript is a finalized session ready to render.
type Transcript struct {
	ChannelName string
	Start       time.Time
	End         time.Time
	Backtrack   string
	Records     []Record
}

// Render produces the transcript artifact body.
func (t Transcript) Render() []byte {
	var b strings.Builder
	b.WriteString("# Chat transcript\n")
	fmt.Fprintf(&b, "**Channel**: %s\n", t.ChannelName)
	fmt.Fprintf(&b, "**Start time**: %s\n", t.Start.Format(TimeLayout))
	fmt.Fprintf(&b, "**End time**: %s\n", t.End.Format(TimeLayout))
	if t.Backtrack != "" {
		fmt.Fprintf(&b, "**Backfill**: %s\n", t.Backtrack)
	}
	b.WriteString("\n")
	for _, r := range t.Records {
		b.WriteString(r.Line())
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// Summary is a generated summary and the provider that produced it.
type Summary struct {
	Text     string
	Provider string
	Model    string
}

// RenderSummary produces the summary artifact body.
func RenderSummary(channelName string, s Summary) []byte {
	attribution := s.Provider
	if s.Model != "" {
		attribution += " " + s.Model
	}
	return []byte(fmt.Sprintf("# AI summary - %s\n\n%s\n\n---\n*Generated by %s*\n", channelName, strings.TrimSpace(s.Text), attribution))
}

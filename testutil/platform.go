package testutil

import (
	"context"
	"os"
	"strconv"
	"sync"

	"github.com/onnwee/chat-scribe/platform"
)

// SentMessage is a text message captured by FakePlatform.
type SentMessage struct {
	ChannelID string
	ID        string
	Content   string
}

// UploadedFile is a file read at upload time; the originals are usually temporary.
type UploadedFile struct {
	Name string
	Body []byte
}

// Upload is one SendFiles call captured by FakePlatform.
type Upload struct {
	ChannelID string
	Content   string
	Files     []UploadedFile
}

// FakePlatform is an in-memory platform.Platform for tests.
type FakePlatform struct {
	Self  string
	Names map[string]string

	// HistoryFunc answers FetchHistory; when nil History and HistoryErr are returned.
	HistoryFunc func(q platform.HistoryQuery) ([]platform.Message, error)
	History     []platform.Message
	HistoryErr  error
	SendErr     error
	FilesErr    error

	mu      sync.Mutex
	queries []platform.HistoryQuery
	sent    []SentMessage
	uploads []Upload
	deleted []string
	nextID  int
	events  chan platform.Event
}

// NewFakePlatform returns a fake whose bot user id is self.
func NewFakePlatform(self string) *FakePlatform {
	return &FakePlatform{Self: self, Names: map[string]string{}, events: make(chan platform.Event, 64)}
}

func (f *FakePlatform) FetchHistory(ctx context.Context, q platform.HistoryQuery) ([]platform.Message, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	fn := f.HistoryFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(q)
	}
	return f.History, f.HistoryErr
}

func (f *FakePlatform) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	if f.SendErr != nil {
		return "", f.SendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "sent-" + strconv.Itoa(f.nextID)
	f.sent = append(f.sent, SentMessage{ChannelID: channelID, ID: id, Content: content})
	return id, nil
}

func (f *FakePlatform) SendFiles(ctx context.Context, channelID, content string, files []platform.File) error {
	if f.FilesErr != nil {
		return f.FilesErr
	}
	up := Upload{ChannelID: channelID, Content: content}
	for _, file := range files {
		body, err := os.ReadFile(file.Path)
		if err != nil {
			return err
		}
		up.Files = append(up.Files, UploadedFile{Name: file.Name, Body: body})
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, up)
	f.mu.Unlock()
	return nil
}

func (f *FakePlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, messageID)
	f.mu.Unlock()
	return nil
}

func (f *FakePlatform) ChannelName(ctx context.Context, channelID string) (string, error) {
	if n, ok := f.Names[channelID]; ok {
		return n, nil
	}
	return channelID, nil
}

func (f *FakePlatform) Mention(channelID string) string { return "<#" + channelID + ">" }
func (f *FakePlatform) SelfID() string { return f.Self }

func (f *FakePlatform) Open(ctx context.Context) error { return nil }
func (f *FakePlatform) Events() <-chan platform.Event { return f.events }
func (f *FakePlatform) Emit(ev platform.Event) { f.events <- ev }
func (f *FakePlatform) Close() error { close(f.events); return nil }

// Queries returns the history queries received so far.
func (f *FakePlatform) Queries() []platform.HistoryQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.HistoryQuery(nil), f.queries...)
}

// Sent returns the text messages sent so far.
func (f *FakePlatform) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// Uploads returns the file uploads so far.
func (f *FakePlatform) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upload(nil), f.uploads...)
}

// Deleted returns the ids of deleted messages.
func (f *FakePlatform) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// FakeResponder captures command replies.
type FakeResponder struct {
	mu      sync.Mutex
	Replies []string
	Edits   []string
	// Ephemeral records the flag of each reply.
	Ephemeral []bool
}

func (r *FakeResponder) Reply(ctx context.Context, content string, ephemeral bool) error {
	r.mu.Lock()
	r.Replies = append(r.Replies, content)
	r.Ephemeral = append(r.Ephemeral, ephemeral)
	r.mu.Unlock()
	return nil
}

func (r *FakeResponder) Edit(ctx context.Context, content string) error {
	r.mu.Lock()
	r.Edits = append(r.Edits, content)
	r.mu.Unlock()
	return nil
}

// Snapshot returns copies of the recorded replies and edits.
func (r *FakeResponder) Snapshot() (replies, edits []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Replies...), append([]string(nil), r.Edits...)
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-scribe/platform"
	"github.com/onnwee/chat-scribe/testutil"
)

func assertTime(t *testing.T, want, got time.Time) {
	t.Helper()
	if !want.Equal(got) {
		t.Fatalf("time = %s, want %s", got, want)
	}
}

var testLoc = time.FixedZone("UTC+8", 8*3600)

func at(hhmm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2024-05-01 "+hhmm, testLoc)
	if err != nil {
		panic(err)
	}
	return t
}

func msg(id, author string, ts time.Time, content string) platform.Message {
	return platform.Message{
		ID:        id,
		ChannelID: "chan-1",
		Author:    platform.Author{ID: author, DisplayName: "User " + author, Handle: "user" + author},
		Content:   content,
		CreatedAt: ts,
	}
}

func rec(id string, ts time.Time) Record {
	return NewRecord(msg(id, "u1", ts, "text "+id), testLoc)
}

type fakeDeliverer struct {
	mu    sync.Mutex
	err   error
	calls []delivered
}

type delivered struct {
	channelID string
	content   string
	artifacts []Artifact
}

func (d *fakeDeliverer) Deliver(ctx context.Context, channelID, content string, artifacts []Artifact) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, delivered{channelID, content, artifacts})
	return d.err
}

func (d *fakeDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
	retract []string
	n       int
	// hold, when set, stalls Notify until it is closed or ctx ends
	hold chan struct{}
}

func (n *fakeNotifier) Notify(ctx context.Context, channelID, text string) (string, error) {
	n.mu.Lock()
	hold := n.hold
	n.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.n++
	n.notices = append(n.notices, text)
	return fmt.Sprintf("notice-%d", n.n), nil
}

func (n *fakeNotifier) Retract(ctx context.Context, channelID, messageID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.retract = append(n.retract, messageID)
	return nil
}

func (n *fakeNotifier) Mention(channelID string) string { return "<#" + channelID + ">" }

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

type fakeSummarizer struct {
	ok    bool
	calls int
}

func (s *fakeSummarizer) Summarize(ctx context.Context, channelName string, records []Record) (Summary, bool) {
	s.calls++
	if !s.ok {
		return Summary{}, false
	}
	return Summary{Text: fmt.Sprintf("%d messages discussed", len(records)), Provider: "fake", Model: "m1"}, true
}

type fakeLedger struct {
	mu   sync.Mutex
	runs []Run
}

func (l *fakeLedger) RecordRun(ctx context.Context, run Run) error {
	l.mu.Lock()
	l.runs = append(l.runs, run)
	l.mu.Unlock()
	return nil
}

var errBoom = errors.New("boom")

type harness struct {
	fp       *testutil.FakePlatform
	notifier *fakeNotifier
	deliver  *fakeDeliverer
	summary  *fakeSummarizer
	ledger   *fakeLedger
	manager  *Manager
	clock    *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newHarness(start time.Time) *harness {
	h := &harness{
		fp:       testutil.NewFakePlatform("bot"),
		notifier: &fakeNotifier{},
		deliver:  &fakeDeliverer{},
		summary:  &fakeSummarizer{ok: true},
		ledger:   &fakeLedger{},
		clock:    &clock{now: start},
	}
	merger := &Merger{Client: h.fp, Location: testLoc}
	fin := &Finalizer{
		Notifier:   h.notifier,
		Deliverer:  h.deliver,
		Summarizer: h.summary,
		Ledger:     h.ledger,
		Location:   testLoc,
		Now:        h.clock.Now,
	}
	h.manager = NewManager(context.Background(), NewStore(), merger, fin, h.notifier)
	h.manager.Now = h.clock.Now
	h.manager.SelfID = "bot"
	return h
}

// Package platform defines the chat-platform collaborator used by the capture service:
// a client that answers history queries and sends/deletes messages, and a source that
// delivers live events. Concrete adapters live in platform/discord and platform/twitch.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrHistoryUnsupported is returned by adapters whose platform has no history API.
var ErrHistoryUnsupported = errors.New("platform: history fetch not supported")

// Author identifies the sender of a message.
type Author struct {
	ID          string
	DisplayName string
	Handle      string
	Bot         bool
	// Roles holds role names (not ids) the author has in the channel's guild, if known.
	Roles []string
	// Direct is true when the message was sent outside a guild (DM / whisper).
	Direct bool
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename string
	URL      string
}

// Message is a raw platform message as delivered live or returned by a history query.
type Message struct {
	ID          string
	ChannelID   string
	Author      Author
	Content     string
	Attachments []Attachment
	CreatedAt   time.Time
}

// HistoryQuery describes one bounded history fetch. At most one of AfterID/After and at most
// one of BeforeID/Before should be set. OldestFirst selects ascending order in the result;
// otherwise messages come back newest-first.
type HistoryQuery struct {
	ChannelID   string
	AfterID     string
	After       time.Time
	BeforeID    string
	Before      time.Time
	Limit       int
	OldestFirst bool
}

// HasLowerBound reports whether the query is anchored at an ID or time lower bound.
func (q HistoryQuery) HasLowerBound() bool { return q.AfterID != "" || !q.After.IsZero() }

// File is a local artifact handed to the platform for upload.
type File struct {
	Name string
	Path string
}

// Client is the outbound half of the platform.
type Client interface {
	FetchHistory(ctx context.Context, q HistoryQuery) ([]Message, error)
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	SendFiles(ctx context.Context, channelID, content string, files []File) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	ChannelName(ctx context.Context, channelID string) (string, error)
	// Mention renders a reference to a channel suitable for embedding in a message.
	Mention(channelID string) string
	// SelfID is the bot's own author id; its messages are never recorded.
	SelfID() string
}

// EventKind discriminates Event payloads.
type EventKind int

const (
	EventMessage EventKind = iota
	EventCommand
)

// Responder answers a command invocation. Ephemeral replies are only visible to the invoker
// where the platform supports it.
type Responder interface {
	Reply(ctx context.Context, content string, ephemeral bool) error
	// Edit replaces the content of the initial reply.
	Edit(ctx context.Context, content string) error
}

// Command is a parsed invocation of one of the bot's commands.
type Command struct {
	Name      string
	ChannelID string
	Invoker   Author
	// Options holds option values keyed by option name, rendered as strings.
	Options map[string]string
	Reply   Responder
}

// Event is one item from the live stream.
type Event struct {
	Kind    EventKind
	Message Message
	Command *Command
}

// Source delivers live events until Close is called.
type Source interface {
	Open(ctx context.Context) error
	Events() <-chan Event
	Close() error
}

// Platform is a connected adapter exposing both halves.
type Platform interface {
	Client
	Source
}

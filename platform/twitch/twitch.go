// Package twitch adapts Twitch IRC chat to the platform interfaces. Twitch has no message
// history API, so captures here are live-only; transcripts are written to a local outbox and
// announced in chat.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-scribe/platform"
)

// CommandPrefix introduces a chat command, e.g. "!record minutes=30".
const CommandPrefix = "!"

// Adapter implements platform.Platform over an IRC connection. Channel ids are channel logins.
type Adapter struct {
	client   *twitch.Client
	channels []string
	outbox   string
	send     func(channel, text string)
	up       atomic.Bool
	// Names resolves a channel login to its display name; nil uses the login.
	Names interface {
		DisplayName(ctx context.Context, login string) (string, error)
	}

	mu     sync.RWMutex
	selfID string
	events chan platform.Event
	closed bool
	// done is closed first on Close so a blocked emit gives up the read lock
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an adapter that joins channels as username. Artifacts are copied below outbox.
func New(username, oauth string, channels []string, outbox string) (*Adapter, error) {
	if username == "" || oauth == "" || len(channels) == 0 {
		return nil, fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	a := &Adapter{
		client:   twitch.NewClient(username, oauth),
		channels: channels,
		outbox:   outbox,
		events:   make(chan platform.Event, 256),
		done:     make(chan struct{}),
	}
	a.send = a.client.Say
	a.client.OnPrivateMessage(a.onPrivateMessage)
	a.client.OnConnect(func() { a.up.Store(true) })
	a.client.OnGlobalUserStateMessage(func(m twitch.GlobalUserStateMessage) {
		a.mu.Lock()
		a.selfID = m.User.ID
		a.mu.Unlock()
	})
	return a, nil
}

// Open joins the channels and connects in the background; the connection is closed when ctx
// is cancelled.
func (a *Adapter) Open(ctx context.Context) error {
	a.client.Join(a.channels...)
	go func() {
		<-ctx.Done()
		_ = a.client.Disconnect()
	}()
	go func() {
		defer a.up.Store(false)
		if err := a.client.Connect(); err != nil && ctx.Err() == nil {
			slog.Error("twitch chat connect error", slog.Any("err", err))
		}
	}()
	slog.Info("twitch chat joining", slog.Any("channels", a.channels))
	return nil
}

func (a *Adapter) Events() <-chan platform.Event { return a.events }

// Connected reports whether the IRC connection is established.
func (a *Adapter) Connected() bool { return a.up.Load() }

func (a *Adapter) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	err := a.client.Disconnect()
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	if errors.Is(err, twitch.ErrConnectionIsNotOpen) {
		return nil
	}
	return err
}

func (a *Adapter) emit(ev platform.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *Adapter) onPrivateMessage(msg twitch.PrivateMessage) {
	author := authorOf(msg.User)
	if name, opts, ok := ParseCommand(msg.Message); ok {
		a.emit(platform.Event{Kind: platform.EventCommand, Command: &platform.Command{
			Name:      name,
			ChannelID: msg.Channel,
			Invoker:   author,
			Options:   opts,
			Reply:     &responder{say: a.say, channel: msg.Channel, user: msg.User.Name},
		}})
		return
	}
	a.emit(platform.Event{Kind: platform.EventMessage, Message: platform.Message{
		ID:        msg.ID,
		ChannelID: msg.Channel,
		Author:    author,
		Content:   msg.Message,
		CreatedAt: msg.Time,
	}})
}

func (a *Adapter) SelfID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.selfID
}

func (a *Adapter) FetchHistory(ctx context.Context, q platform.HistoryQuery) ([]platform.Message, error) {
	return nil, platform.ErrHistoryUnsupported
}

func (a *Adapter) ChannelName(ctx context.Context, channelID string) (string, error) {
	if a.Names == nil {
		return channelID, nil
	}
	name, err := a.Names.DisplayName(ctx, channelID)
	if err != nil {
		slog.Debug("twitch display name lookup failed", slog.String("channel", channelID), slog.Any("err", err))
		return channelID, nil
	}
	return name, nil
}

func (a *Adapter) Mention(channelID string) string { return "#" + channelID }

// SendMessage says content in the channel. IRC messages have no id the bot can later delete.
func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	a.say(channelID, content)
	return "", nil
}

// DeleteMessage is a no-op: notices sent over IRC are not addressable.
func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return nil
}

// SendFiles copies files into <outbox>/<channel>/ and announces them in chat.
func (a *Adapter) SendFiles(ctx context.Context, channelID, content string, files []platform.File) error {
	dir := filepath.Join(a.outbox, channelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create outbox: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if err := copyFile(f.Path, filepath.Join(dir, f.Name)); err != nil {
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
		names = append(names, f.Name)
	}
	a.say(channelID, content+" Saved: "+strings.Join(names, ", "))
	return nil
}

func (a *Adapter) say(channel, text string) {
	a.send(channel, Flatten(text))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// responder answers in chat, addressed to the invoker. IRC has neither ephemeral messages nor
// edits, so every reply is a new line.
type responder struct {
	say     func(channel, text string)
	channel string
	user    string
}

func (r *responder) Reply(ctx context.Context, content string, ephemeral bool) error {
	r.say(r.channel, "@"+r.user+" "+content)
	return nil
}

func (r *responder) Edit(ctx context.Context, content string) error {
	return r.Reply(ctx, content, false)
}

// Package discord adapts a Discord bot session to the platform interfaces: gateway messages and
// slash commands become events, and the REST API answers history queries and delivers files.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chat-scribe/platform"
)

// Adapter implements platform.Platform for Discord.
type Adapter struct {
	session *discordgo.Session
	guildID string
	up      atomic.Bool

	// gateway calls, swapped out in tests
	connect    func() error
	disconnect func() error
	register   func(ctx context.Context) (int, error)

	mu     sync.RWMutex
	events chan platform.Event
	closed bool
	// done is closed first on Close so a blocked emit gives up the read lock
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an adapter. guildID scopes slash-command registration; empty registers globally.
func New(token, guildID string) (*Adapter, error) {
	if token == "" {
		return nil, errors.New("discord bot token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	a := &Adapter{
		session:    session,
		guildID:    guildID,
		connect:    session.Open,
		disconnect: session.Close,
		events:     make(chan platform.Event, 256),
		done:       make(chan struct{}),
	}
	a.register = a.registerCommands
	session.AddHandler(a.onMessageCreate)
	session.AddHandler(a.onInteractionCreate)
	session.AddHandler(func(*discordgo.Session, *discordgo.Connect) { a.up.Store(true) })
	session.AddHandler(func(*discordgo.Session, *discordgo.Disconnect) { a.up.Store(false) })
	return a, nil
}

// Open connects to the gateway and registers the slash commands.
func (a *Adapter) Open(ctx context.Context) error {
	if err := a.connect(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	n, err := a.register(ctx)
	if err != nil {
		if cerr := a.disconnect(); cerr != nil {
			slog.Warn("discord close after failed registration", slog.Any("err", cerr))
		}
		return fmt.Errorf("register slash commands: %w", err)
	}
	slog.Info("discord connected", slog.String("user", a.session.State.User.Username), slog.Int("commands", n), slog.String("guild", a.guildID))
	return nil
}

func (a *Adapter) registerCommands(ctx context.Context) (int, error) {
	cmds, err := a.session.ApplicationCommandBulkOverwrite(a.session.State.User.ID, a.guildID, Commands(), discordgo.WithContext(ctx))
	return len(cmds), err
}

func (a *Adapter) Events() <-chan platform.Event { return a.events }

// Connected reports whether the gateway websocket is up.
func (a *Adapter) Connected() bool { return a.up.Load() }

// Close disconnects and closes the event channel.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	err := a.disconnect()
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
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

func (a *Adapter) SelfID() string {
	if a.session.State == nil || a.session.State.User == nil {
		return ""
	}
	return a.session.State.User.ID
}

func (a *Adapter) Mention(channelID string) string { return "<#" + channelID + ">" }

func (a *Adapter) ChannelName(ctx context.Context, channelID string) (string, error) {
	if ch, err := a.session.State.Channel(channelID); err == nil {
		return ch.Name, nil
	}
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("lookup channel %s: %w", channelID, err)
	}
	return ch.Name, nil
}

func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	msg, err := a.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: safeMentions(),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (a *Adapter) SendFiles(ctx context.Context, channelID, content string, files []platform.File) error {
	send := &discordgo.MessageSend{Content: content, AllowedMentions: safeMentions()}
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, f := range files {
		fh, err := os.Open(f.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		closers = append(closers, fh)
		send.Files = append(send.Files, &discordgo.File{Name: f.Name, ContentType: "text/markdown", Reader: fh})
	}
	_, err := a.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return a.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

// safeMentions lets the bot mention users but never @everyone, @here or roles.
func safeMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}}
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	a.emit(platform.Event{Kind: platform.EventMessage, Message: toMessage(m.Message)})
}

func (a *Adapter) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	cmd := &platform.Command{
		Name:      data.Name,
		ChannelID: i.ChannelID,
		Invoker:   a.invoker(i.Interaction),
		Options:   optionValues(data.Options),
		Reply:     &responder{session: s, interaction: i.Interaction},
	}
	a.emit(platform.Event{Kind: platform.EventCommand, Command: cmd})
}

func (a *Adapter) invoker(i *discordgo.Interaction) platform.Author {
	if i.Member == nil {
		// direct message: no guild, no roles
		author := authorOf(i.User, nil)
		author.Direct = true
		return author
	}
	author := authorOf(i.Member.User, i.Member)
	for _, id := range i.Member.Roles {
		if name := a.roleName(i.GuildID, id); name != "" {
			author.Roles = append(author.Roles, name)
		}
	}
	return author
}

func (a *Adapter) roleName(guildID, roleID string) string {
	if r, err := a.session.State.Role(guildID, roleID); err == nil {
		return r.Name
	}
	roles, err := a.session.GuildRoles(guildID)
	if err != nil {
		slog.Warn("failed to resolve guild roles", slog.String("guild", guildID), slog.Any("err", err))
		return ""
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r.Name
		}
	}
	return ""
}

// responder answers a slash command. The first Reply is the interaction response; later
// replies become follow-ups.
type responder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction

	mu      sync.Mutex
	replied bool
}

func (r *responder) Reply(ctx context.Context, content string, ephemeral bool) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.replied {
		r.replied = true
		return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: content, Flags: flags, AllowedMentions: safeMentions()},
		}, discordgo.WithContext(ctx))
	}
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{Content: content, Flags: flags, AllowedMentions: safeMentions()}, discordgo.WithContext(ctx))
	return err
}

func (r *responder) Edit(ctx context.Context, content string) error {
	_, err := r.session.InteractionResponseEdit(r.interaction, &discordgo.WebhookEdit{Content: &content}, discordgo.WithContext(ctx))
	return err
}

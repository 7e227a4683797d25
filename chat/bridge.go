package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/platform"
)

// Bridge dispatches platform events to the capture manager.
type Bridge struct {
	Manager    *capture.Manager
	Client     platform.Client
	Source     platform.Source
	Permission Permission
	// StopCommand is how users are told to stop a recording, e.g. "/stop" or "!stop".
	StopCommand string

	wg sync.WaitGroup
}

// Run consumes events until ctx is cancelled or the source closes, then waits for in-flight
// command handlers.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.wg.Wait()
	events := b.Source.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, ev platform.Event) {
	switch ev.Kind {
	case platform.EventMessage:
		b.ingest(ev.Message)
	case platform.EventCommand:
		if ev.Command == nil {
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.Handle(ctx, ev.Command)
		}()
	}
}

func (b *Bridge) ingest(msg platform.Message) {
	if self := b.Client.SelfID(); self != "" && msg.Author.ID == self {
		return
	}
	err := b.Manager.Ingest(msg)
	switch {
	case err == nil, errors.Is(err, capture.ErrNotRecording):
	default:
		slog.Warn("failed to ingest message", slog.String("channel", msg.ChannelID), slog.String("message_id", msg.ID), slog.Any("err", err))
	}
}

// Handle runs one command after the permission check.
func (b *Bridge) Handle(ctx context.Context, cmd *platform.Command) {
	logger := slog.Default().With(slog.String("component", "chat_command"), slog.String("command", cmd.Name), slog.String("channel", cmd.ChannelID), slog.String("user", cmd.Invoker.Handle))
	if !b.Permission.Allows(cmd.Invoker) {
		logger.Info("command denied")
		b.reply(ctx, cmd, b.Permission.Denial(cmd.Invoker), true)
		return
	}
	logger.Info("command received", slog.Any("options", cmd.Options))
	switch cmd.Name {
	case "record":
		b.record(ctx, cmd)
	case "stop":
		b.stop(ctx, cmd)
	case "say":
		b.say(ctx, cmd)
	default:
		b.reply(ctx, cmd, "Unknown command.", true)
	}
}

func (b *Bridge) reply(ctx context.Context, cmd *platform.Command, content string, ephemeral bool) {
	if err := cmd.Reply.Reply(ctx, content, ephemeral); err != nil {
		slog.Warn("command reply failed", slog.String("command", cmd.Name), slog.Any("err", err))
	}
}

func (b *Bridge) edit(ctx context.Context, cmd *platform.Command, content string) {
	if err := cmd.Reply.Edit(ctx, content); err != nil {
		slog.Warn("command reply edit failed", slog.String("command", cmd.Name), slog.Any("err", err))
	}
}

func (b *Bridge) channelName(ctx context.Context, channelID string) string {
	name, err := b.Client.ChannelName(ctx, channelID)
	if err != nil || name == "" {
		slog.Debug("channel name lookup failed", slog.String("channel", channelID), slog.Any("err", err))
		return channelID
	}
	return name
}

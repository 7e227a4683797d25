// Package delivery hands rendered artifacts to their destination: a chat channel via the
// platform's file upload, or a local directory for exports.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/platform"
)

// ChannelDelivery uploads artifacts to a channel. Files are staged in a temporary directory
// that is removed whether or not the upload succeeds.
type ChannelDelivery struct {
	Client platform.Client
	// TempDir is the parent for staging directories; empty uses the OS default.
	TempDir string
}

func (d *ChannelDelivery) Deliver(ctx context.Context, channelID, content string, artifacts []capture.Artifact) error {
	dir, err := os.MkdirTemp(d.TempDir, "scribe-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove staged artifacts", slog.String("dir", dir), slog.Any("err", err))
		}
	}()

	files := make([]platform.File, 0, len(artifacts))
	for _, a := range artifacts {
		path := filepath.Join(dir, a.Name)
		if err := os.WriteFile(path, a.Body, 0o600); err != nil {
			return fmt.Errorf("write artifact %s: %w", a.Name, err)
		}
		files = append(files, platform.File{Name: a.Name, Path: path})
	}
	if err := d.Client.SendFiles(ctx, channelID, content, files); err != nil {
		return fmt.Errorf("upload artifacts: %w", err)
	}
	return nil
}

// DirDelivery writes artifacts into Dir and keeps them.
type DirDelivery struct {
	Dir string
}

func (d *DirDelivery) Deliver(ctx context.Context, channelID, content string, artifacts []capture.Artifact) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, a := range artifacts {
		path := filepath.Join(d.Dir, a.Name)
		if err := os.WriteFile(path, a.Body, 0o644); err != nil {
			return fmt.Errorf("write artifact %s: %w", a.Name, err)
		}
		slog.Info("artifact written", slog.String("path", path), slog.Int("bytes", len(a.Body)))
	}
	return nil
}

// ClientNotifier posts status notices through the platform client.
type ClientNotifier struct {
	Client platform.Client
}

func (n *ClientNotifier) Notify(ctx context.Context, channelID, text string) (string, error) {
	return n.Client.SendMessage(ctx, channelID, text)
}

func (n *ClientNotifier) Retract(ctx context.Context, channelID, messageID string) error {
	return n.Client.DeleteMessage(ctx, channelID, messageID)
}

func (n *ClientNotifier) Mention(channelID string) string { return n.Client.Mention(channelID) }

// LogNotifier writes notices to the log; used when no chat channel is attached (CLI export).
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, channelID, text string) (string, error) {
	slog.Info(text, slog.String("channel", channelID))
	return "", nil
}

func (LogNotifier) Retract(ctx context.Context, channelID, messageID string) error { return nil }

func (LogNotifier) Mention(channelID string) string { return channelID }

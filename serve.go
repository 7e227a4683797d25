package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/chat"
	"github.com/onnwee/chat-scribe/config"
	"github.com/onnwee/chat-scribe/db"
	"github.com/onnwee/chat-scribe/delivery"
	"github.com/onnwee/chat-scribe/ledger"
	"github.com/onnwee/chat-scribe/platform"
	"github.com/onnwee/chat-scribe/platform/discord"
	"github.com/onnwee/chat-scribe/platform/twitch"
	"github.com/onnwee/chat-scribe/server"
	"github.com/onnwee/chat-scribe/summary"
	"github.com/onnwee/chat-scribe/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot and the ops HTTP server",
		Long: `Connect to the configured platform (PLATFORM=discord|twitch) and record channels on
command. Configuration is read from the environment and, when present, a .env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// livePlatform is an adapter that can report its connection state to /readyz.
type livePlatform interface {
	platform.Platform
	Connected() bool
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetry.Init()
	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing(serviceName, version)
	if err != nil {
		return fmt.Errorf("tracing initialization failed: %w", err)
	}
	defer shutdown()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runs *ledger.Ledger
	if cfg.DBDsn != "" {
		database, err := openLedgerDB(ctx, cfg.DBDsn)
		if err != nil {
			return err
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		runs = ledger.New(database)
	} else {
		slog.Info("capture ledger disabled (DB_DSN not set)")
	}

	pipeline, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	p, stopCommand, err := openPlatform(cfg)
	if err != nil {
		return err
	}

	notifier := &delivery.ClientNotifier{Client: p}
	fin := &capture.Finalizer{
		Notifier:   notifier,
		Deliverer:  &delivery.ChannelDelivery{Client: p, TempDir: cfg.DataDir},
		Summarizer: pipeline,
		Location:   cfg.Location,
	}
	if runs != nil {
		fin.Ledger = runs
	}
	// finalizations started before a signal still deliver; Wait below joins them
	base := context.WithoutCancel(ctx)
	m := capture.NewManager(base, capture.NewStore(), &capture.Merger{Client: p, Location: cfg.Location}, fin, notifier)
	m.Limits = capture.Limits{MaxLookback: cfg.MaxLookback, MaxMessages: cfg.MaxMessages}
	m.IdleTimeout = cfg.IdleTimeout

	if err := p.Open(ctx); err != nil {
		return err
	}
	m.SelfID = p.SelfID()

	go func() {
		if err := m.IdleMonitor(cfg.SweepSchedule).Run(ctx); err != nil {
			slog.Error("idle monitor exited", slog.Any("err", err))
		}
	}()

	deps := server.Deps{
		Manager:   m,
		Connected: p.Connected,
		Auth:      server.AuthConfig{Username: cfg.AdminUsername, Password: cfg.AdminPassword, Token: cfg.AdminToken},
	}
	if runs != nil {
		deps.Runs = runs
	}
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, deps); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	bridge := &chat.Bridge{
		Manager:     m,
		Client:      p,
		Source:      p,
		Permission:  chat.Permission{Roles: cfg.AllowedRoles},
		StopCommand: stopCommand,
	}
	slog.Info("chat-scribe running", slog.String("platform", cfg.Platform), slog.String("http_addr", cfg.HTTPAddr), slog.Any("allowed_roles", cfg.AllowedRoles))
	err = bridge.Run(ctx)

	slog.Info("shutting down", slog.Int("active_sessions", m.Store.Len()))
	m.Wait()
	if cerr := p.Close(); cerr != nil {
		slog.Warn("platform close failed", slog.Any("err", cerr))
	}
	return err
}

func openLedgerDB(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	return database, nil
}

// buildPipeline wires every credentialed provider into the summary fallback chain.
func buildPipeline(ctx context.Context, cfg *config.Config) (*summary.Pipeline, error) {
	gens, err := summary.Generators(ctx, cfg.Summary)
	if err != nil {
		return nil, fmt.Errorf("summary providers: %w", err)
	}
	descs, err := summary.Resolve(cfg.ProvidersFile, cfg.Summary, gens, cfg.SummaryTimeout)
	if err != nil {
		return nil, fmt.Errorf("summary providers: %w", err)
	}
	if len(descs) == 0 {
		slog.Warn("no summary provider configured; recordings will be delivered without AI summaries")
	}
	return summary.NewPipeline(gens, descs, summary.NewLimiter(cfg.SummaryMaxConcurrent)), nil
}

// openPlatform builds the adapter for cfg.Platform and the stop command users are pointed to.
func openPlatform(cfg *config.Config) (livePlatform, string, error) {
	switch cfg.Platform {
	case config.PlatformTwitch:
		a, err := twitch.New(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannels, cfg.TwitchOutboxDir)
		if err != nil {
			return nil, "", err
		}
		if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
			a.Names = twitch.NewDirectory(cfg.TwitchClientID, cfg.TwitchClientSecret)
		}
		return a, twitch.CommandPrefix + "stop", nil
	default:
		a, err := discord.New(cfg.DiscordToken, cfg.DiscordGuildID)
		if err != nil {
			return nil, "", err
		}
		return a, "/stop", nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/config"
	"github.com/onnwee/chat-scribe/delivery"
	"github.com/onnwee/chat-scribe/ledger"
	"github.com/onnwee/chat-scribe/platform/discord"
	"github.com/onnwee/chat-scribe/summary"
)

type exportFlags struct {
	channel   string
	directive capture.Directive
	noSummary bool
	out       string
}

func exportCmd() *cobra.Command {
	var f exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a Discord channel's history to a directory",
		Long: `Fetch a bounded window of a Discord channel's history over REST and write the
transcript (and an AI summary unless --no-summary) to --out. No gateway connection is made
and nothing is posted to the channel.

Examples:
  scribe export --channel 123 --minutes 60 --out ./exports
  scribe export --channel 123 --start "2024-05-01 08:00" --end "2024-05-01 09:30" --out ./exports
  scribe export --channel 123 --after 1234567890 --limit 50 --no-summary --out ./exports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.channel, "channel", "", "Discord channel id (required)")
	cmd.Flags().StringVar(&f.directive.AfterID, "after", "", "Only messages after this message id")
	cmd.Flags().StringVar(&f.directive.BeforeID, "before", "", "Only messages before this message id")
	cmd.Flags().StringVar(&f.directive.StartTime, "start", "", `Window start, "YYYY-MM-DD HH:MM[:SS]" in CAPTURE_TZ_OFFSET`)
	cmd.Flags().StringVar(&f.directive.EndTime, "end", "", "Window end, same format as --start")
	cmd.Flags().IntVar(&f.directive.Limit, "limit", 0, "Maximum number of messages")
	cmd.Flags().IntVar(&f.directive.Minutes, "minutes", 0, "Look back this many minutes")
	cmd.Flags().BoolVar(&f.noSummary, "no-summary", false, "Skip the AI summary")
	cmd.Flags().StringVar(&f.out, "out", "exports", "Output directory")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func runExport(ctx context.Context, f exportFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if cfg.DiscordToken == "" {
		return errors.New("missing discord env: require DISCORD_TOKEN")
	}

	client, err := discord.New(cfg.DiscordToken, cfg.DiscordGuildID)
	if err != nil {
		return err
	}

	var pipeline *summary.Pipeline
	if !f.noSummary {
		if pipeline, err = buildPipeline(ctx, cfg); err != nil {
			return err
		}
	}

	notifier := delivery.LogNotifier{}
	fin := &capture.Finalizer{
		Notifier:  notifier,
		Deliverer: &delivery.DirDelivery{Dir: f.out},
		Location:  cfg.Location,
	}
	if pipeline != nil {
		fin.Summarizer = pipeline
	}
	if cfg.DBDsn != "" {
		database, err := openLedgerDB(ctx, cfg.DBDsn)
		if err != nil {
			return err
		}
		defer database.Close()
		fin.Ledger = ledger.New(database)
	}

	m := capture.NewManager(ctx, capture.NewStore(), &capture.Merger{Client: client, Location: cfg.Location}, fin, notifier)
	m.Limits = capture.Limits{MaxLookback: cfg.MaxLookback, MaxMessages: cfg.MaxMessages}

	name := f.channel
	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if n, err := client.ChannelName(lookupCtx, f.channel); err == nil {
		name = n
	} else {
		slog.Warn("channel name lookup failed; using id", slog.String("channel", f.channel), slog.Any("err", err))
	}
	cancel()

	f.directive.Summary = !f.noSummary
	res, err := m.Export(ctx, capture.StartRequest{ChannelID: f.channel, ChannelName: name, Directive: f.directive}, "")
	for _, w := range res.Warnings {
		fmt.Println("warning:", w)
	}
	if res.FetchErr != nil {
		fmt.Printf("warning: history fetch stopped early: %v\n", res.FetchErr)
	}
	if err != nil {
		return err
	}
	if res.Report.Empty {
		fmt.Println("No messages in the requested window.")
		return nil
	}
	fmt.Printf("Exported %d messages from #%s to %s (summary: %t, run %s)\n",
		res.Report.Messages, name, f.out, res.Report.Summarized, res.Report.RunID)
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onnwee/chat-scribe/config"
)

func providersCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Print the resolved summary provider fallback list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			pipeline, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			descs := pipeline.Descriptors()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(descs)
			}
			if len(descs) == 0 {
				fmt.Println("No summary providers configured.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tPROVIDER\tMODEL\tTIMEOUT")
			for i, d := range descs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, d.Provider, d.Model, d.Timeout)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

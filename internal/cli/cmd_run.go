package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"CallScorer/internal/app"
	"CallScorer/internal/infrastructure/telegram"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze all pending transcripts once",
		Long: `Load transcripts from the configured source, analyze every item not yet in
the progress store and print the run report. Ctrl-C stops after the current
batch and still writes a final checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			_, err = fmt.Fprintln(out, telegram.FormatReport(report))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run analysis on the configured cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx, runNow)
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "start one run immediately instead of waiting for the schedule")
	return cmd
}

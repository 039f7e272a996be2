package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			active, err := cfg.Scoring.Active()
			if err != nil {
				return err
			}

			profiles := make([]string, 0, len(cfg.Scoring.Profiles))
			for name := range cfg.Scoring.Profiles {
				profiles = append(profiles, name)
			}
			sort.Strings(profiles)

			s := cfg.Scheduler
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config ok")
			fmt.Fprintf(out, "profile: %s (available: %s)\n", active.Name, strings.Join(profiles, ", "))
			fmt.Fprintf(out, "thresholds: pass >= %g, review >= %g\n", active.Thresholds.Pass, active.Thresholds.Review)
			fmt.Fprintf(out, "batch tiers: %v (initial %d)\n", s.BatchTiers, s.InitialBatchSize)
			fmt.Fprintf(out, "concurrency: %d..%d (initial %d)\n", s.MinConcurrency, s.MaxConcurrency, s.InitialConcurrency)
			fmt.Fprintf(out, "storage: %s\n", cfg.Storage.Driver)
			fmt.Fprintf(out, "source: %s %s\n", cfg.Source.Kind, cfg.Source.Path)
			fmt.Fprintf(out, "schedule: %q %s\n", s.CronExpression, s.Location())
			return nil
		},
	}
}

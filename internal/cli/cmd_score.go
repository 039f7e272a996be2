package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"CallScorer/internal/domain"
	"CallScorer/internal/qci"
)

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "score [evidence.json|-]",
		Short: "Score evidence records without calling the extraction service",
		Long: `Read one or more evidence records (concatenated JSON objects) from a file or
stdin and print the QCI result for each.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			profile, err := cfg.Scoring.Active()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open evidence: %w", err)
				}
				defer f.Close()
				in = f
			}

			return scoreStream(in, cmd.OutOrStdout(), qci.New(profile), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON lines")
	return cmd
}

func scoreStream(in io.Reader, out io.Writer, scorer *qci.Scorer, asJSON bool) error {
	dec := json.NewDecoder(in)
	enc := json.NewEncoder(out)

	for n := 1; ; n++ {
		var ev domain.EvidenceRecord
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				if n == 1 {
					return errors.New("no evidence records in input")
				}
				return nil
			}
			return fmt.Errorf("decode evidence record %d: %w", n, err)
		}

		result := scorer.Score(ev)
		if asJSON {
			if err := enc.Encode(result); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprint(out, qci.Explain(result)); err != nil {
			return err
		}
	}
}

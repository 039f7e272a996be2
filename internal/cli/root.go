// Package cli provides the Cobra command tree for callscorer.
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"CallScorer/internal/config"
	"CallScorer/internal/logging"
)

type rootOptions struct {
	configPath string
	envFile    string
	profile    string
}

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "callscorer",
		Short: "Quality Call Index scoring for sales call transcripts",
		Long: `callscorer - Quality Call Index (QCI) scoring for sales call transcripts

Transcripts are sent to an LLM extraction service in adaptive batches; the
extracted evidence is scored 0-100 with an auditable breakdown, hard gates and
warning flags. Progress is checkpointed so interrupted runs resume where they
stopped.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (default $CALLSCORER_CONFIG)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with secrets; ignored when missing")
	flags.StringVar(&opts.profile, "profile", "", "scoring profile to use (overrides config)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newRunCmd(opts),
		newScoreCmd(opts),
		newDaemonCmd(opts),
		newValidateCmd(opts),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
func Execute(args []string, stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}

// load reads the dotenv file and the configuration.
func (o *rootOptions) load() (config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.profile != "" {
		cfg.Scoring.Profile = o.profile
		if _, err := cfg.Scoring.Active(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.NewWithFormat(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
}

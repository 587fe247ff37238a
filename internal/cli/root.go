// Package cli implements the coincore command-line interface, a thin
// consumer of the transaction engine.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coincore/internal/config"
	"github.com/mrz1836/coincore/internal/metrics"
	"github.com/mrz1836/coincore/internal/output"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	recorder  *metrics.Metrics
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "coincore",
	Short: "Quote and send transfers across ETH, BTC, XLM and a trading account",
	Long: `coincore drives the multi-asset transaction engine from the terminal.

It prices a transfer, shows the confirmation summary and validation outcome,
and sends it after asking for the second password that unlocks local keys.

Example:
  coincore keystore init
  coincore quote --asset eth --from 0x... --to 0x... --amount 1.4
  coincore send --asset xlm --from G... --to G... --amount 25 --memo 1234`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command. An interrupt cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(os.Stderr, err, format)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return coreerr.ExitCode(err)
}

// initGlobals loads configuration and builds the logger, formatter and
// metrics recorder shared by every command.
func initGlobals(cmd *cobra.Command) error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	if err != nil {
		if !coreerr.Is(err, coreerr.ErrConfigNotFound) {
			return err
		}
		cfg = config.Defaults()
		cfg.Home = home
	}

	config.ApplyEnvironment(cfg)

	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging := cfg.Logging
	logging.File = cfg.GetLoggingFile()
	logger, err = config.NewLoggerFromConfig(logging)
	if err != nil {
		logger = config.NullLogger()
	}

	if cfg.Metrics.Enabled {
		recorder = metrics.New()
	}

	out := cmd.OutOrStdout()
	formatter = output.NewFormatter(output.DetectFormat(out, output.ParseFormat(cfg.Output.DefaultFormat)), out)
	return nil
}

// cleanup flushes metrics and releases the log file.
func cleanup() {
	if recorder != nil && cfg != nil && cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(config.ExpandHome(cfg.Metrics.Textfile)); err != nil {
			logger.Error("writing metrics textfile: %v", err)
		}
	}
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "coincore data directory (default: ~/.coincore)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

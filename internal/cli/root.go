// Package cli implements the kinmigrate command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/config"
	"github.com/kinecosystem/kinmigrate/internal/output"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	networkFlag  string
	appIDFlag    string

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	active    *CommandContext

	helpOnce sync.Once
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kinmigrate",
	Short: "Move Kin accounts from Kin Core to the Kin SDK blockchain",
	Long: `kinmigrate manages Kin accounts on both Kin blockchains and migrates
legacy Kin Core accounts to the Kin SDK blockchain.

A migration burns the legacy account, asks the migration service to
recreate it on the new blockchain and moves the keystore record across.

Example:
  kinmigrate account create --blockchain core
  kinmigrate balance
  kinmigrate migrate GABC...`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initGlobals()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	helpOnce.Do(func() { walkCommands(rootCmd, enrichParentLong) })
	err := rootCmd.Execute()
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(os.Stderr, err, format)
		cleanup()
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return kinerr.ExitCode(err)
}

// initGlobals loads configuration and builds the logger and formatter.
func initGlobals() error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.LoadOrDefault(config.Path(config.ExpandHome(home)))
	if err != nil {
		return err
	}
	cfg.Home = home

	config.ApplyEnvironment(cfg)
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logging := cfg.Logging
	logging.File = cfg.LogFile()
	logger, err = config.NewLogger(logging, os.Stderr)
	if err != nil {
		logger = config.NullLogger()
	}

	format := output.DetectFormat(os.Stdout, output.ParseFormat(cfg.Output.DefaultFormat))
	formatter = output.NewFormatter(format, os.Stdout)
	return nil
}

// applyFlags overrides configuration with command-line flags.
func applyFlags(c *config.Config) {
	if homeDir != "" {
		c.Home = homeDir
	}
	if networkFlag != "" {
		c.Network = networkFlag
	}
	if appIDFlag != "" {
		c.AppID = appIDFlag
	}
	if verbose {
		c.Output.Verbose = true
		c.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		c.Output.DefaultFormat = outputFormat
	}
}

// cleanup releases resources.
func cleanup() {
	if active != nil {
		active.Close()
		active = nil
	}
	if logger != nil {
		_ = logger.Close()
		logger = nil
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "kinmigrate data directory (default: ~/.kinmigrate)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&networkFlag, "network", "", "network: production, playground, custom")
	rootCmd.PersistentFlags().StringVar(&appIDFlag, "app-id", "", "app id, 3 or 4 alphanumeric characters")
}

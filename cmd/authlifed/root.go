package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrEthical07/authlife"
)

// app carries state shared by subcommands after PersistentPreRunE.
type app struct {
	v        *viper.Viper
	settings settings
	logger   *slog.Logger
}

func newRootCommand() *cobra.Command {
	return newRootCommandFor(&app{})
}

// newRootCommandFor builds the command tree around a. A pre-set a.v replaces
// the environment-backed viper.
func newRootCommandFor(a *app) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "authlifed",
		Short:         "Session lifecycle and signing-secret rotation service",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.v == nil {
				a.v = authlife.NewViper()
			}
			a.settings = loadSettings(a.v)
			if cmd.Flags().Changed("log-level") {
				a.settings.LogLevel = logLevel
			}
			logger, err := newLogger(cmd.ErrOrStderr(), a.settings.LogLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(a),
		newSweepCommand(a),
		newSecretCommand(a),
	)
	return root
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

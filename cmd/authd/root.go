// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/logging"
	"github.com/holomush/authd/internal/xdg"
)

// serviceName tags every log line.
const serviceName = "authd"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authd CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

// newRootCmdWithDeps creates the root command with injectable dependencies
// for every subcommand.
func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authd",
		Short: "authd - account registration, login and token service",
		Long: `authd registers users, verifies passwords with bcrypt and issues
signed access and refresh tokens over an HTTP/JSON API backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (YAML, default: $XDG_CONFIG_HOME/authd/config.yaml if present)")
	flags.String("database-url", "", "PostgreSQL URL (overrides config and DATABASE_URL)")
	flags.String("log-format", config.DefaultLogFormat, "log format (json or text)")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.BoolP("verbose", "v", false, "shorthand for --log-level=debug")

	cmd.AddCommand(newServeCmdWithDeps(deps))
	cmd.AddCommand(newMigrateCmdWithDeps(deps))
	cmd.AddCommand(newUserCmdWithDeps(deps))
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration for cmd. Without
// --config the XDG config file is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = xdg.DefaultConfigFile(); err != nil {
			return nil, err //nolint:wrapcheck // xdg errors are already coded
		}
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors are already coded
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// setupLogging installs the default logger for cfg.
func setupLogging(cfg *config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
}

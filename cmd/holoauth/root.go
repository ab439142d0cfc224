// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/logging"
)

const serviceName = "holoauth"

// NewRootCmd creates the root command for the holoauth CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holoauth",
		Short: "holoauth - credential and session lifecycle engine",
		Long: `holoauth owns user credentials and sessions: argon2id password hashing,
short-lived access tokens, rotating refresh tokens and password reset links,
all persisted in PostgreSQL.`,
		SilenceUsage: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewPurgeCmd(deps))
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewUserCmd(deps))

	return cmd
}

// loadConfig resolves and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(config.LoadOptions{Flags: cmd.Flags()})
}

// setupLogging installs the process logger described by cfg.
func setupLogging(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Output:  w,
	}), nil
}

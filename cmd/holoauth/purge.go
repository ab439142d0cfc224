// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh tokens and password resets once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPurge(cmd.Context(), cfg, cmd, deps)
		},
	}
}

func runPurge(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	pool, err := openPool(ctx, cfg, deps)
	if err != nil {
		return oops.Code("PURGE_DB_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	mailer, err := deps.NewMailer(cfg, logger)
	if err != nil {
		return oops.Code("PURGE_INIT_FAILED").Wrap(err)
	}
	svc, err := newServices(cfg, pool, mailer, logger)
	if err != nil {
		return oops.Code("PURGE_INIT_FAILED").Wrap(err)
	}

	result, err := svc.janitor.Sweep(ctx)
	cmd.Printf("Deleted %d refresh tokens and %d password resets\n", result.RefreshTokens, result.PasswordResets)
	if err != nil {
		// Sweep joins coded repository errors; the purge code must stay outermost.
		return oops.Code("PURGE_FAILED").
			With("cause", err.Error()).
			Errorf("sweep failed")
	}
	return nil
}

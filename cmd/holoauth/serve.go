// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background maintenance process",
		Long: `Connect to PostgreSQL, optionally apply migrations, then sweep expired
refresh tokens and password resets on an interval while serving metrics and
health probes. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, deps)
		},
	}
}

// runServeWithDeps runs until a signal arrives, ctx is cancelled or a
// server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger.Info("starting holoauth",
		"version", version,
		"janitor_interval", cfg.Janitor.Interval.String(),
		"metrics_addr", cfg.Metrics.Addr,
	)

	pool, err := openPool(ctx, cfg, deps)
	if err != nil {
		return oops.Code("SERVE_DB_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.URL, deps); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	mailer, err := deps.NewMailer(cfg, logger)
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("operation", "create mailer").Wrap(err)
	}
	svc, err := newServices(cfg, pool, mailer, logger)
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("operation", "build services").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		var extra []prometheus.Collector
		if s, ok := pool.(poolStatter); ok {
			extra = store.PoolCollectors(s)
		}
		obsServer = deps.NewObservabilityServer(cfg.Metrics.Addr, pool.Ping, logger, extra...)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_INIT_FAILED").With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	janitorDone := make(chan error, 1)
	if cfg.Janitor.Interval > 0 {
		go func() { janitorDone <- svc.janitor.Run(ctx, cfg.Janitor.Interval) }()
	} else {
		close(janitorDone)
		logger.Info("janitor disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("holoauth started")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
	cancel()

	if err := <-janitorDone; err != nil && !errors.Is(err, context.Canceled) {
		errutil.LogError(logger, "janitor stopped with error", err)
	}

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when the server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/mail"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// OpenPool connects to PostgreSQL.
	// Default: store.Open
	OpenPool func(ctx context.Context, cfg store.PoolConfig) (Pool, error)

	// NewMigrator creates a schema migrator.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// NewObservabilityServer creates the metrics and health server.
	// Default: observability.NewServer
	NewObservabilityServer func(addr string, ready observability.ReadinessChecker, logger *slog.Logger, extra ...prometheus.Collector) ObservabilityServer

	// NewMailer creates the mail transport.
	// Default: newMailer
	NewMailer func(cfg config.Config, logger *slog.Logger) (auth.Mailer, error)
}

// Pool is the part of *pgxpool.Pool the commands use.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Steps(n int) error
	Down() error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// poolStatter is implemented by *pgxpool.Pool.
type poolStatter interface {
	Stat() *pgxpool.Stat
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.OpenPool == nil {
		out.OpenPool = func(ctx context.Context, cfg store.PoolConfig) (Pool, error) {
			pool, err := store.Open(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.NewObservabilityServer == nil {
		out.NewObservabilityServer = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger, extra ...prometheus.Collector) ObservabilityServer {
			return observability.NewServer(addr, ready, logger, extra...)
		}
	}
	if out.NewMailer == nil {
		out.NewMailer = newMailer
	}
	return &out
}

// openPool connects with the configured pool settings.
func openPool(ctx context.Context, cfg config.Config, deps *Deps) (Pool, error) {
	return deps.OpenPool(ctx, store.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	})
}

// newMailer selects the transport named by mail.transport.
func newMailer(cfg config.Config, logger *slog.Logger) (auth.Mailer, error) {
	if cfg.Mail.Transport == config.TransportLog {
		return mail.NewLogMailer(logger), nil
	}
	mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:      cfg.Mail.SMTP.Host,
		Port:      cfg.Mail.SMTP.Port,
		Username:  cfg.Mail.SMTP.Username,
		Password:  cfg.Mail.SMTP.Password,
		FromEmail: cfg.Mail.FromEmail,
		FromName:  cfg.Mail.FromName,
		TLS:       mail.TLSMode(cfg.Mail.SMTP.TLS),
	})
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool and the credential schema.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Pool defaults.
const (
	DefaultMaxConns     = 10
	DefaultPingAttempts = 5
	DefaultPingBackoff  = 250 * time.Millisecond
)

// PoolConfig configures Open.
type PoolConfig struct {
	URL      string
	MaxConns int32
	// PingAttempts bounds the startup ping; the delay between attempts
	// doubles from PingBackoff.
	PingAttempts uint64
	PingBackoff  time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.PingAttempts == 0 {
		c.PingAttempts = DefaultPingAttempts
	}
	if c.PingBackoff <= 0 {
		c.PingBackoff = DefaultPingBackoff
	}
	return c
}

// Open creates a bounded pool and waits until the database answers a ping.
func Open(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := ping(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func ping(ctx context.Context, db pinger, cfg PoolConfig) error {
	backoff := retry.WithMaxRetries(cfg.PingAttempts-1, retry.NewExponential(cfg.PingBackoff))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := db.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_PING_FAILED").
			With("operation", "ping database").
			With("attempts", attempts).
			Wrap(err)
	}
	return nil
}

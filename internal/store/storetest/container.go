// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package storetest starts a disposable PostgreSQL for integration tests.
package storetest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/holoauth/internal/store"
)

// Database is a running container with the credential schema applied.
type Database struct {
	URL       string
	Pool      *pgxpool.Pool
	container testcontainers.Container
}

// Start runs postgres in a container, applies all migrations and opens a pool.
func Start(ctx context.Context) (*Database, error) {
	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("holoauth_test"),
		postgres.WithUsername("holoauth"),
		postgres.WithPassword("holoauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.With("operation", "start postgres container").Wrap(err)
	}

	db := &Database{container: container}
	db.URL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		db.Close(ctx)
		return nil, oops.With("operation", "get connection string").Wrap(err)
	}

	if err := Migrate(db.URL); err != nil {
		db.Close(ctx)
		return nil, err
	}

	db.Pool, err = store.Open(ctx, store.PoolConfig{URL: db.URL})
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	return db, nil
}

// Migrate applies every embedded migration to the database at url.
func Migrate(url string) error {
	migrator, err := store.NewMigrator(url)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // best-effort cleanup in tests
	return migrator.Up()
}

// Truncate empties all credential tables.
func (d *Database) Truncate(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, `TRUNCATE users, refresh_tokens, password_resets`)
	if err != nil {
		return oops.With("operation", "truncate tables").Wrap(err)
	}
	return nil
}

// Close closes the pool and terminates the container.
func (d *Database) Close(ctx context.Context) {
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.container != nil {
		_ = d.container.Terminate(ctx)
	}
}

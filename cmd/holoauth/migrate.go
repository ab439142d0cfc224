// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credential schema",
		Long:  `Apply, roll back or inspect PostgreSQL schema migrations.`,
	}
	cmd.AddCommand(newMigrateUpCmd(deps), newMigrateDownCmd(deps), newMigrateStatusCmd(deps), newMigrateForceCmd(deps))
	return cmd
}

func newMigrateUpCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := migrateUp(cfg.Database.URL, deps.withDefaults()); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
}

func newMigrateDownCmd(deps *Deps) *cobra.Command {
	var (
		steps int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrateDown(cmd, cfg.Database.URL, steps, all, deps.withDefaults())
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func newMigrateStatusCmd(deps *Deps) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrateStatus(cmd.OutOrStdout(), cfg.Database.URL, jsonOutput, deps.withDefaults())
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")
	return cmd
}

func newMigrateForceCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Record VERSION as the current schema version and clear the dirty flag.
Use it to recover after a migration failed halfway and was repaired by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("MIGRATION_INVALID_VERSION").With("version", args[0]).Errorf("VERSION must be an integer")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrateForce(cmd, cfg.Database.URL, version, deps.withDefaults())
		},
	}
}

// withMigrator opens a migrator, runs fn and closes it.
func withMigrator(databaseURL string, deps *Deps, fn func(Migrator) error) (err error) {
	m, err := deps.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func migrateUp(databaseURL string, deps *Deps) error {
	return withMigrator(databaseURL, deps, func(m Migrator) error {
		if err := m.Up(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
		}
		return nil
	})
}

func runMigrateDown(cmd *cobra.Command, databaseURL string, steps int, all bool, deps *Deps) error {
	if !all && steps < 1 {
		return oops.Code("MIGRATION_INVALID_STEPS").With("steps", steps).Errorf("--steps must be at least 1")
	}
	err := withMigrator(databaseURL, deps, func(m Migrator) error {
		var err error
		if all {
			err = m.Down()
		} else {
			err = m.Steps(-steps)
		}
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cmd.Println("Rollback completed successfully")
	return nil
}

func runMigrateForce(cmd *cobra.Command, databaseURL string, version int, deps *Deps) error {
	err := withMigrator(databaseURL, deps, func(m Migrator) error {
		if err := m.Force(version); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate force").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cmd.Printf("Schema version forced to %d\n", version)
	return nil
}

func runMigrateStatus(w io.Writer, databaseURL string, jsonOutput bool, deps *Deps) error {
	return withMigrator(databaseURL, deps, func(m Migrator) error {
		status, err := m.Status()
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return oops.Wrap(enc.Encode(status))
		}
		return writeStatusTable(w, status)
	})
}

func writeStatusTable(w io.Writer, status *store.MigrationStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Current version:\t%d\n", status.Current)
	fmt.Fprintf(tw, "Dirty:\t%t\n\n", status.Dirty)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, m := range status.Applied {
		fmt.Fprintf(tw, "%d\t%s\tapplied\n", m.Version, m.Name)
	}
	for _, m := range status.Pending {
		fmt.Fprintf(tw, "%d\t%s\tpending\n", m.Version, m.Name)
	}
	return oops.Wrap(tw.Flush())
}

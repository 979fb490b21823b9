package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"digicop-backend/internal/config"
	"digicop-backend/internal/database"
	"digicop-backend/migrations"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the contact message schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cfg, func(m *migrate.Migrate) error {
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return err
					}
					return printVersion(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cfg, func(m *migrate.Migrate) error {
					if err := m.Steps(-1); err != nil {
						return err
					}
					return printVersion(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cfg, func(m *migrate.Migrate) error {
					return printVersion(cmd, m)
				})
			},
		},
	)

	return cmd
}

func withMigrator(cfg *config.Config, fn func(m *migrate.Migrate) error) error {
	db, err := database.Init(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migrations.New(db.DB.DB, db.Driver)
	if err != nil {
		return err
	}
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return writePlain(cmd.OutOrStdout(), "no migrations applied\n")
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return writePlain(cmd.OutOrStdout(), "version %d (dirty)\n", version)
	}
	return writePlain(cmd.OutOrStdout(), "version %d\n", version)
}

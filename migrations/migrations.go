// Package migrations embeds the SQL schema for every supported database
// driver and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// New returns a migrator for db, reading the scripts embedded for driver.
func New(db *sql.DB, driver string) (*migrate.Migrate, error) {
	sub, err := fs.Sub(files, driver)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	var target database.Driver
	switch driver {
	case "postgres":
		target, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		target, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open migration target: %w", err)
	}

	return migrate.NewWithInstance("iofs", source, driver, target)
}

// Up applies every pending migration. An already up-to-date schema is not an error.
func Up(db *sql.DB, driver string) error {
	m, err := New(db, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}
	return nil
}

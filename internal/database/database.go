package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"digicop-backend/migrations"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type DB struct {
	*sqlx.DB
	Driver string
}

// Init opens the database for driver ("postgres" or "sqlite") and checks the
// connection.
func Init(driver, url string) (*DB, error) {
	if driver == "sqlite" && url != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(url), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// modernc sqlite gives every pooled connection its own :memory: database
		// and serialises writers anyway.
		db.SetMaxOpenConns(1)
	}

	return &DB{DB: db, Driver: driver}, nil
}

func (db *DB) Migrate() error {
	return migrations.Up(db.DB.DB, db.Driver)
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

func prepareGoose(dialect Dialect) (string, error) {
	goose.SetBaseFS(embedMigrations)

	switch dialect {
	case DialectPostgres:
		return "migrations/postgres", goose.SetDialect("postgres")
	case DialectSQLite:
		return "migrations/sqlite", goose.SetDialect("sqlite3")
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// RunMigrations runs all pending goose migrations.
func RunMigrations(db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := prepareGoose(dialect)
	if err != nil {
		return err
	}

	return goose.Up(db, dir)
}

// MigrateDown rolls back the last migration.
func MigrateDown(db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := prepareGoose(dialect)
	if err != nil {
		return err
	}

	return goose.Down(db, dir)
}

// MigrateReset rolls back all migrations.
func MigrateReset(db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := prepareGoose(dialect)
	if err != nil {
		return err
	}

	return goose.Reset(db, dir)
}

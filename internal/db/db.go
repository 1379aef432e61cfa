// Package db provides the SQLite connection and schema migrations backing the
// relation store.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/trly/nfops/internal/log"

	// Register migrate's sqlite3 driver.
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"

	// Register sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ConnectionString returns the migrate connection string for a database path.
func ConnectionString(path string) string {
	return "sqlite3://" + strings.TrimPrefix(path, "sqlite3://")
}

// Connect opens the database at path and verifies the connection.
func Connect(path string, logger log.Logger) (*sql.DB, error) {
	dbPath := strings.TrimPrefix(path, "sqlite3://")

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Debug("Connected to database", "path", dbPath)
	return db, nil
}

// Up runs database migrations to the latest version.
func Up(path string, logger log.Logger) error {
	m, err := migrationInstance(path, logger)
	if err != nil {
		return err
	}
	defer closeMigration(m)

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("No new database migrations to apply")
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %w", err)
	default:
		logger.Info("Database migrations applied successfully")
	}
	return nil
}

// Down rolls back all database migrations.
func Down(path string, logger log.Logger) error {
	m, err := migrationInstance(path, logger)
	if err != nil {
		return err
	}
	defer closeMigration(m)

	err = m.Down()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("No database migrations to roll back")
	case err != nil:
		return fmt.Errorf("failed to roll back migrations: %w", err)
	default:
		logger.Info("Database migrations rolled back successfully")
	}
	return nil
}

func migrationInstance(path string, logger log.Logger) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, ConnectionString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m.Log = &migrationLogger{logger: logger}
	return m, nil
}

func closeMigration(m *migrate.Migrate) {
	_, _ = m.Close()
}

type migrationLogger struct {
	logger log.Logger
}

func (l *migrationLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug("Migration: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrationLogger) Verbose() bool {
	return true
}

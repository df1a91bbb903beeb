// Package sqlite implements the stores on a single SQLite file, for
// single-node deployments and local development.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/internal/infrastructure/persistence/sqlite/migrations"
	"github.com/brainbites/progression-engine/pkg/logger"
)

const domainName = "sqlite"

// DB wraps a sqlx connection to a SQLite database with migration support.
type DB struct {
	*sqlx.DB
	log *logger.Logger
}

// Open creates a SQLite connection with WAL mode and foreign keys enabled.
// Transactions start with BEGIN IMMEDIATE so the writer lock is taken up front.
func Open(path string, log *logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.Nop()
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer: one connection serializes every transaction.
	db.SetMaxOpenConns(1)

	return &DB{DB: db, log: log.With(logger.Component("sqlite"))}, nil
}

// Migrate applies all pending SQL migrations from the embedded filesystem.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := db.Version(ctx)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		version, err := parseVersion(name)
		if err != nil {
			db.log.Warn("skipping non-migration file", logger.String("name", name), logger.Err(err))
			continue
		}
		if version <= current {
			continue
		}

		data, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}

		applied++
		db.log.Info("applied migration", logger.String("name", name), logger.Int("version", version))
	}

	if applied > 0 {
		db.log.Info("migrations complete", logger.Int("applied", applied))
	}
	return nil
}

// Version returns the current schema version.
func (db *DB) Version(ctx context.Context) (int, error) {
	var version int
	err := db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	return version, err
}

// parseVersion extracts the version number from a file name like "001_progression.sql".
func parseVersion(name string) (int, error) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid migration filename: %s", name)
	}
	var version int
	if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return version, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR TRANSLATION
// ══════════════════════════════════════════════════════════════════════════════

// IsUniqueViolation checks for a primary key or unique constraint failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// translate maps driver failures onto the shared error kinds. Domain errors
// pass through untouched.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}

	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return shared.WrapError(domainName, op, shared.ErrConcurrentModification, "database is locked", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError(domainName, op, shared.ErrTimeout, "query timed out", err)
	}
	return fmt.Errorf("%s.%s: %w", domainName, op, err)
}

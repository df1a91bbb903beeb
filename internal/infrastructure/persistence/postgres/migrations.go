package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var last int
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns the migration status.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progression", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_badges", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

// Migration 001: progression records and both streaks.
const migration001Up = `
CREATE TABLE IF NOT EXISTS user_progressions (
    user_id               TEXT PRIMARY KEY,
    xp                    INTEGER NOT NULL DEFAULT 0 CHECK (xp >= 0),
    lives                 INTEGER NOT NULL CHECK (lives >= 0),
    last_life_lost_at     TIMESTAMPTZ,
    everyday_card_quota   INTEGER NOT NULL DEFAULT 10,
    read_cards            INTEGER NOT NULL DEFAULT 0 CHECK (read_cards >= 0),
    quiz_total_attempts   INTEGER NOT NULL DEFAULT 0,
    quiz_correct_attempts INTEGER NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Regeneration tick scans only users below the maximum.
CREATE INDEX IF NOT EXISTS idx_progressions_awaiting_lives
    ON user_progressions (user_id) WHERE lives < 5;

CREATE INDEX IF NOT EXISTS idx_progressions_xp ON user_progressions (xp DESC, user_id);
CREATE INDEX IF NOT EXISTS idx_progressions_read_cards ON user_progressions (read_cards DESC, user_id);

CREATE TABLE IF NOT EXISTS day_streaks (
    user_id        TEXT PRIMARY KEY REFERENCES user_progressions (user_id) ON DELETE CASCADE,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_date      DATE,
    time_zone      TEXT NOT NULL DEFAULT 'UTC',
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (longest_streak >= current_streak)
);

CREATE TABLE IF NOT EXISTS correctness_streaks (
    user_id            TEXT PRIMARY KEY REFERENCES user_progressions (user_id) ON DELETE CASCADE,
    current_count      INTEGER NOT NULL DEFAULT 0,
    max_count          INTEGER NOT NULL DEFAULT 0,
    last_round_perfect BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration001Down = `
DROP TABLE IF EXISTS correctness_streaks;
DROP TABLE IF EXISTS day_streaks;
DROP TABLE IF EXISTS user_progressions;
`

// Migration 002: badge catalog, progress and awards.
const migration002Up = `
CREATE TABLE IF NOT EXISTS badge_definitions (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    criterion_kind TEXT NOT NULL,
    topic_id       TEXT NOT NULL DEFAULT '',
    threshold      INTEGER NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS badge_progress (
    user_id    TEXT NOT NULL REFERENCES user_progressions (user_id) ON DELETE CASCADE,
    badge_id   TEXT NOT NULL,
    value      INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, badge_id)
);

-- One row per (user, badge); awarding relies on this key.
CREATE TABLE IF NOT EXISTS earned_badges (
    user_id   TEXT NOT NULL REFERENCES user_progressions (user_id) ON DELETE CASCADE,
    badge_id  TEXT NOT NULL,
    earned_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, badge_id)
);
`

const migration002Down = `
DROP TABLE IF EXISTS earned_badges;
DROP TABLE IF EXISTS badge_progress;
DROP TABLE IF EXISTS badge_definitions;
`

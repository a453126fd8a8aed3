// Package sqlite persists the engine state: the current-day snapshot,
// the spend journal, applied grant ids, and day passes. A restart mid-day
// restores the snapshot verbatim so the budget survives.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle. A single writer connection keeps writes
// serialized; sqlite handles the rest.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	handle.SetMaxOpenConns(1)

	db := &DB{db: handle}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error { return db.db.Close() }

// Migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Current-day snapshot, single row
		`CREATE TABLE IF NOT EXISTS energy_snapshot (
			id                      INTEGER PRIMARY KEY CHECK (id = 1),
			base_energy_today       INTEGER NOT NULL DEFAULT 0,
			move_points_today       INTEGER NOT NULL DEFAULT 0,
			reboot_points_today     INTEGER NOT NULL DEFAULT 0,
			joy_points_today        INTEGER NOT NULL DEFAULT 0,
			bonus_steps             INTEGER NOT NULL DEFAULT 0,
			outer_world_bonus_steps INTEGER NOT NULL DEFAULT 0,
			server_granted_steps    INTEGER NOT NULL DEFAULT 0,
			spent_steps             INTEGER NOT NULL DEFAULT 0,
			spent_minutes           INTEGER NOT NULL DEFAULT 0,
			snapshot_taken_at       TEXT NOT NULL
		)`,

		// Every committed spend, append-only
		`CREATE TABLE IF NOT EXISTS spend_journal (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			target_app    TEXT NOT NULL DEFAULT '',
			steps         INTEGER NOT NULL,
			minutes       INTEGER NOT NULL,
			balance_after INTEGER NOT NULL,
			spent_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spend_journal_app ON spend_journal(target_app)`,

		// Day-boundary resets with the balance they closed
		`CREATE TABLE IF NOT EXISTS reset_journal (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			day_key        TEXT NOT NULL,
			closed_balance INTEGER NOT NULL,
			reset_at       TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Applied grants, the replay guard. Amounts are stored alongside
		// the id so grants accepted before the first sample of the day
		// survive a restart.
		`CREATE TABLE IF NOT EXISTS applied_grants (
			grant_id                TEXT PRIMARY KEY,
			day_key                 TEXT NOT NULL DEFAULT '',
			bonus_steps             INTEGER NOT NULL DEFAULT 0,
			outer_world_bonus_steps INTEGER NOT NULL DEFAULT 0,
			server_granted_steps    INTEGER NOT NULL DEFAULT 0,
			applied_at              TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_applied_grants_day ON applied_grants(day_key)`,

		// Purchased day passes, one per app per economic day
		`CREATE TABLE IF NOT EXISTS day_pass_grants (
			target_app TEXT NOT NULL,
			day_key    TEXT NOT NULL,
			granted_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (target_app, day_key)
		)`,

		// Per-app per-day spend totals for audit display
		`CREATE TABLE IF NOT EXISTS app_spend_daily (
			target_app  TEXT NOT NULL,
			day_key     TEXT NOT NULL,
			steps_spent INTEGER NOT NULL DEFAULT 0,
			open_count  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (target_app, day_key)
		)`,
	}
}

func (db *DB) migrate() error {
	for i, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

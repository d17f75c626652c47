package store

import (
	"database/sql"
	"fmt"
)

// schema holds one step per schema version; schema[i] upgrades version i
// to i+1. The applied version is kept in SQLite's user_version pragma.
var schema = []string{
	`CREATE TABLE registrations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id INTEGER NOT NULL,
		name       TEXT NOT NULL,
		ok         INTEGER NOT NULL,
		at_ns      INTEGER NOT NULL
	);
	CREATE INDEX idx_registrations_at ON registrations(at_ns);`,

	`CREATE TABLE sessions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		profile    TEXT NOT NULL,
		started_ns INTEGER NOT NULL,
		stopped_ns INTEGER,
		frames     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX idx_sessions_started ON sessions(started_ns);`,
}

// SchemaVersion is the version a fully migrated journal reports.
var SchemaVersion = len(schema)

func userVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrate brings db up to SchemaVersion, one transaction per step. A
// journal written by a newer build is refused.
func migrate(db *sql.DB) error {
	v, err := userVersion(db)
	if err != nil {
		return err
	}
	if v > len(schema) {
		return fmt.Errorf("journal schema version %d is newer than supported %d", v, len(schema))
	}

	for ; v < len(schema); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin schema step %d: %w", v+1, err)
		}
		if _, err := tx.Exec(schema[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("schema step %d: %w", v+1, err)
		}
		// PRAGMA does not take bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record schema version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema step %d: %w", v+1, err)
		}
	}
	return nil
}

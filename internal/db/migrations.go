package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL statements to run.
// Each statement is idempotent (CREATE ... IF NOT EXISTS).
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS communities (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT    NOT NULL UNIQUE,
		gate_open   INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS houses (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		community_id INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
		number       TEXT    NOT NULL,
		active       INTEGER NOT NULL DEFAULT 1,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (community_id, number)
	)`,
	`CREATE TABLE IF NOT EXISTS residents (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		house_id     INTEGER NOT NULL REFERENCES houses(id) ON DELETE CASCADE,
		name         TEXT    NOT NULL,
		device_token TEXT    NOT NULL DEFAULT '',
		active       INTEGER NOT NULL DEFAULT 1,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS visit_records (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		notification_id     TEXT,
		community_id        INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
		house_number        TEXT    NOT NULL,
		visitor_name        TEXT    NOT NULL,
		reason              TEXT    NOT NULL DEFAULT '',
		photo_ref           TEXT    NOT NULL DEFAULT '',
		status              TEXT    NOT NULL DEFAULT 'pending',
		resolved_by         TEXT,
		resolved_by_user_id INTEGER,
		resolved_at         DATETIME,
		created_at          DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	// Partial unique index: notification_id is an idempotency key only on the
	// push path, absent records must not collide.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_visit_records_notification_id
		ON visit_records(notification_id) WHERE notification_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_visit_records_arrival
		ON visit_records(community_id, house_number, visitor_name, created_at)`,
	`CREATE TABLE IF NOT EXISTS visitor_profiles (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		community_id     INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
		name             TEXT    NOT NULL,
		normalized_name  TEXT    NOT NULL,
		total_visits     INTEGER NOT NULL DEFAULT 0,
		accepted_count   INTEGER NOT NULL DEFAULT 0,
		rejected_count   INTEGER NOT NULL DEFAULT 0,
		houses_visited   TEXT    NOT NULL DEFAULT '[]',
		frequent_reasons TEXT    NOT NULL DEFAULT '{}',
		first_seen_at    DATETIME NOT NULL,
		last_seen_at     DATETIME NOT NULL,
		UNIQUE (community_id, normalized_name)
	)`,
	`CREATE TABLE IF NOT EXISTS visit_search (
		notification_id TEXT PRIMARY KEY,
		community_id    INTEGER NOT NULL,
		terms           TEXT NOT NULL
	)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

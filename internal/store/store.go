// Package store persists counting sessions, their boundary definitions, and
// the count events they produce to SQLite.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle and owns the schema.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and ensures the baseline
// schema exists. Use MigrateUp for schema changes beyond the baseline.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			name              TEXT,
			preset_id         TEXT,
			started_at        TIMESTAMP NOT NULL,
			ended_at          TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS boundaries (
			session_id        TEXT NOT NULL,
			boundary_id       TEXT NOT NULL,
			name              TEXT,
			kind              TEXT NOT NULL,
			mode              TEXT NOT NULL,
			points_json       TEXT NOT NULL,
			PRIMARY KEY (session_id, boundary_id),
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS counting_events (
			event_id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT NOT NULL,
			boundary_id       TEXT NOT NULL,
			track_id          BIGINT NOT NULL,
			class             TEXT,
			direction         TEXT NOT NULL,
			pos_x             DOUBLE,
			pos_y             DOUBLE,
			confidence        DOUBLE,
			speed_px_per_s    DOUBLE,
			frame_index       BIGINT,
			timestamp         TIMESTAMP NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_events_session_time
			ON counting_events(session_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_session_boundary
			ON counting_events(session_id, boundary_id);
		CREATE TABLE IF NOT EXISTS daily_summaries (
			day               TEXT NOT NULL,
			session_id        TEXT NOT NULL,
			class             TEXT NOT NULL,
			count             INTEGER NOT NULL,
			PRIMARY KEY (day, session_id, class)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

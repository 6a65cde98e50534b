package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roadmetrics/countline/internal/counting"
)

// Session is one recorded counting session.
type Session struct {
	ID        string     `json:"session_id"`
	Name      string     `json:"name,omitempty"`
	PresetID  string     `json:"preset_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// CreateSession inserts a new session row with a generated identifier and
// records the boundary definitions it runs with.
func (db *DB) CreateSession(name, presetID string, startedAt time.Time, boundaries []counting.Boundary) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		PresetID:  presetID,
		StartedAt: startedAt.UTC(),
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin session transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (session_id, name, preset_id, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Name, s.PresetID, s.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	for _, b := range boundaries {
		points, err := json.Marshal(b.Points)
		if err != nil {
			return nil, fmt.Errorf("failed to encode boundary %s points: %w", b.ID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO boundaries (session_id, boundary_id, name, kind, mode, points_json)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, b.ID, b.Name, string(b.Kind), string(b.Mode), string(points),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert boundary %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session: %w", err)
	}
	return s, nil
}

// CloseSession stamps a session's end time.
func (db *DB) CloseSession(sessionID string, endedAt time.Time) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`,
		endedAt.UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found or already closed", sessionID)
	}
	return nil
}

// GetSession returns one session by identifier.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	var s Session
	var ended sql.NullTime
	err := db.QueryRow(
		`SELECT session_id, name, preset_id, started_at, ended_at FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&s.ID, &s.Name, &s.PresetID, &s.StartedAt, &ended)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return &s, nil
}

// ListSessions returns sessions newest first, up to limit.
func (db *DB) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT session_id, name, preset_id, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.Name, &s.PresetID, &s.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// SessionBoundaries returns the boundary definitions recorded for a session.
func (db *DB) SessionBoundaries(sessionID string) ([]counting.Boundary, error) {
	rows, err := db.Query(
		`SELECT boundary_id, name, kind, mode, points_json
		 FROM boundaries WHERE session_id = ? ORDER BY rowid`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query boundaries: %w", err)
	}
	defer rows.Close()

	var out []counting.Boundary
	for rows.Next() {
		var b counting.Boundary
		var kind, mode, points string
		if err := rows.Scan(&b.ID, &b.Name, &kind, &mode, &points); err != nil {
			return nil, fmt.Errorf("failed to scan boundary: %w", err)
		}
		b.Kind = counting.BoundaryKind(kind)
		b.Mode = counting.DirectionMode(mode)
		if err := json.Unmarshal([]byte(points), &b.Points); err != nil {
			return nil, fmt.Errorf("failed to decode boundary %s points: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

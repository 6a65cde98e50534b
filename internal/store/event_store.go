package store

import (
	"fmt"
	"time"

	"github.com/roadmetrics/countline/internal/counting"
)

// StoredEvent is a count event as read back from the database.
type StoredEvent struct {
	EventID   int64  `json:"event_id"`
	SessionID string `json:"session_id"`
	counting.CountEvent
}

// InsertEvents writes a batch of count events for one session in a single
// transaction. An empty batch is a no-op.
func (db *DB) InsertEvents(sessionID string, events []counting.CountEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO counting_events (
			session_id, boundary_id, track_id, class, direction,
			pos_x, pos_y, confidence, speed_px_per_s, frame_index, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err := stmt.Exec(
			sessionID, ev.BoundaryID, ev.TrackID, string(ev.Class), string(ev.Direction),
			ev.Position.X, ev.Position.Y, ev.Confidence, ev.SpeedPxPerS, ev.FrameIndex,
			ev.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert event for track %d: %w", ev.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// RecentEvents returns a session's newest events, newest first.
func (db *DB) RecentEvents(sessionID string, limit int) ([]*StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT event_id, session_id, boundary_id, track_id, class, direction,
		       pos_x, pos_y, confidence, speed_px_per_s, frame_index, timestamp
		FROM counting_events
		WHERE session_id = ?
		ORDER BY event_id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*StoredEvent
	for rows.Next() {
		var e StoredEvent
		var class, direction string
		if err := rows.Scan(
			&e.EventID, &e.SessionID, &e.BoundaryID, &e.TrackID, &class, &direction,
			&e.Position.X, &e.Position.Y, &e.Confidence, &e.SpeedPxPerS, &e.FrameIndex,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Class = counting.VehicleClass(class)
		e.Direction = counting.CrossDirection(direction)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ClassTotals returns per-class event counts for a session.
func (db *DB) ClassTotals(sessionID string) (map[counting.VehicleClass]int, error) {
	rows, err := db.Query(`
		SELECT class, COUNT(*)
		FROM counting_events
		WHERE session_id = ?
		GROUP BY class`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query class totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[counting.VehicleClass]int)
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("failed to scan class total: %w", err)
		}
		totals[counting.VehicleClass(class)] = n
	}
	return totals, rows.Err()
}

// BoundaryTotals returns per-boundary, per-direction event counts for a
// session.
func (db *DB) BoundaryTotals(sessionID string) (map[string]map[counting.CrossDirection]int, error) {
	rows, err := db.Query(`
		SELECT boundary_id, direction, COUNT(*)
		FROM counting_events
		WHERE session_id = ?
		GROUP BY boundary_id, direction`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query boundary totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]map[counting.CrossDirection]int)
	for rows.Next() {
		var boundaryID, direction string
		var n int
		if err := rows.Scan(&boundaryID, &direction, &n); err != nil {
			return nil, fmt.Errorf("failed to scan boundary total: %w", err)
		}
		byDir := totals[boundaryID]
		if byDir == nil {
			byDir = make(map[counting.CrossDirection]int)
			totals[boundaryID] = byDir
		}
		byDir[counting.CrossDirection(direction)] = n
	}
	return totals, rows.Err()
}

// HourlyCount is one hour bucket of per-class event counts.
type HourlyCount struct {
	Hour  time.Time             `json:"hour"`
	Class counting.VehicleClass `json:"class"`
	Count int                   `json:"count"`
}

// HourlyCounts aggregates a session's events into per-hour, per-class
// buckets, ordered by hour.
func (db *DB) HourlyCounts(sessionID string) ([]HourlyCount, error) {
	rows, err := db.Query(`
		SELECT strftime('%Y-%m-%dT%H:00:00Z', timestamp) AS hour, class, COUNT(*)
		FROM counting_events
		WHERE session_id = ?
		GROUP BY hour, class
		ORDER BY hour, class`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly counts: %w", err)
	}
	defer rows.Close()

	var out []HourlyCount
	for rows.Next() {
		var hour, class string
		var n int
		if err := rows.Scan(&hour, &class, &n); err != nil {
			return nil, fmt.Errorf("failed to scan hourly count: %w", err)
		}
		t, err := time.Parse(time.RFC3339, hour)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hour bucket %q: %w", hour, err)
		}
		out = append(out, HourlyCount{Hour: t, Class: counting.VehicleClass(class), Count: n})
	}
	return out, rows.Err()
}

package store

import (
	"fmt"
	"time"

	"github.com/roadmetrics/countline/internal/counting"
)

// DailySummary is one day's per-class event count for a session.
type DailySummary struct {
	Day   string                `json:"day"` // YYYY-MM-DD
	Class counting.VehicleClass `json:"class"`
	Count int                   `json:"count"`
}

// RollupDaily recomputes a session's daily summaries from its events.
// Existing rows for the session are replaced, so the rollup is idempotent.
func (db *DB) RollupDaily(sessionID string) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO daily_summaries (day, session_id, class, count)
		SELECT strftime('%Y-%m-%d', timestamp), session_id, class, COUNT(*)
		FROM counting_events
		WHERE session_id = ?
		GROUP BY strftime('%Y-%m-%d', timestamp), class`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to roll up daily summaries: %w", err)
	}
	return nil
}

// DailySummaries returns a session's daily rollups ordered by day then class.
func (db *DB) DailySummaries(sessionID string) ([]DailySummary, error) {
	rows, err := db.Query(`
		SELECT day, class, count
		FROM daily_summaries
		WHERE session_id = ?
		ORDER BY day, class`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries: %w", err)
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		var s DailySummary
		var class string
		if err := rows.Scan(&s.Day, &class, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		s.Class = counting.VehicleClass(class)
		out = append(out, s)
	}
	return out, rows.Err()
}

// EventCountSince returns how many events a session has recorded at or after
// the given time. Used by live dashboards for cheap freshness checks.
func (db *DB) EventCountSince(sessionID string, since time.Time) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM counting_events
		WHERE session_id = ? AND timestamp >= ?`, sessionID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Package store provides a durable, queryable supplement to the mandated
// JSON-lines telemetry stream. The original had "multiple overlapping
// persistence variants"; the JSON-lines stream remains the primary,
// specified contract, and this SQLite-backed store is purely additive.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a SQLite database recording every telemetry event across
// sessions, for later cross-run querying.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at path and ensures the events
// table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	level TEXT NOT NULL,
	component TEXT NOT NULL,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	step_id TEXT,
	details TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append inserts one telemetry event row.
func (s *Store) Append(ts time.Time, level, component, sessionID, eventType, stepID string, details map[string]interface{}) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("store: marshal details: %w", err)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO events (timestamp, level, component, session_id, event_type, step_id, details) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(time.RFC3339Nano), level, component, sessionID, eventType, stepID, string(detailsJSON),
	)
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}
	return nil
}

// Row is one queried event record.
type Row struct {
	Timestamp time.Time
	Level     string
	Component string
	SessionID string
	EventType string
	StepID    string
	Details   string
}

// SessionEvents returns every event recorded for a given session, ordered by
// insertion (which matches timestamp order since the orchestrator runs
// single-threaded).
func (s *Store) SessionEvents(sessionID string) ([]Row, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, level, component, session_id, event_type, step_id, details FROM events WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query session events: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ts string
		var stepID, details sql.NullString
		if err := rows.Scan(&ts, &r.Level, &r.Component, &r.SessionID, &r.EventType, &stepID, &details); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.StepID = stepID.String
		r.Details = details.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

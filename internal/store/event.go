package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Event is a perception event recorded under a session.
type Event struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	Kind       string          `json:"kind"`
	EntityID   string          `json:"entity_id"`
	Confidence float64         `json:"confidence"`
	X          *float64        `json:"x,omitempty"`
	Y          *float64        `json:"y,omitempty"`
	Metadata   json.RawMessage `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EventRepository provides operations on recorded events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Append records e and sets its ID.
func (r *EventRepository) Append(e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	metadata := e.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	result, err := r.db.Exec(
		`INSERT INTO events (session_id, kind, entity_id, confidence, x, y, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Kind, e.EntityID, e.Confidence, e.X, e.Y, string(metadata), e.CreatedAt,
	)
	if err != nil {
		return err
	}

	e.ID, err = result.LastInsertId()
	return err
}

// ListBySession returns the events of a session in the order they were
// recorded. A non-positive limit returns all of them.
func (r *EventRepository) ListBySession(sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, kind, entity_id, confidence, x, y, metadata, created_at
		 FROM events WHERE session_id = ? ORDER BY id ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var x, y sql.NullFloat64
		var metadata string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.EntityID, &e.Confidence, &x, &y, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if x.Valid && y.Valid {
			e.X, e.Y = &x.Float64, &y.Float64
		}
		e.Metadata = json.RawMessage(metadata)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByKind returns the number of events per kind recorded in a session.
func (r *EventRepository) CountByKind(sessionID string) (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT kind, COUNT(*) FROM events WHERE session_id = ? GROUP BY kind`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

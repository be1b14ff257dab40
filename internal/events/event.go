// Package events defines the typed perception events and the hub that fans
// them out to game consumers.
package events

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/ayusman/playsight/internal/geometry"
)

// Kind identifies the type of a CVEvent.
type Kind string

const (
	HandDetected        Kind = "handDetected"
	HandLost            Kind = "handLost"
	FingerCountDetected Kind = "fingerCountDetected"
	GestureDetected     Kind = "gestureDetected"
	SudokuGridDetected  Kind = "sudokuGridDetected"
	SudokuGridLost      Kind = "sudokuGridLost"
	SudokuCellWritten   Kind = "sudokuCellWritten"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	HandDetected,
	HandLost,
	FingerCountDetected,
	GestureDetected,
	SudokuGridDetected,
	SudokuGridLost,
	SudokuCellWritten,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Lifecycle reports whether k marks an entity appearing or disappearing.
func (k Kind) Lifecycle() bool {
	switch k {
	case HandDetected, HandLost, SudokuGridDetected, SudokuGridLost:
		return true
	}
	return false
}

// CVEvent is one perception event. Events are values: position and metadata
// are private and only handed out as copies, so an event cannot change after
// it is published.
type CVEvent struct {
	Kind       Kind
	EntityID   string
	Confidence float64
	Timestamp  time.Time
	pos        *geometry.Point
	meta       map[string]any
}

// New creates an event.
func New(kind Kind, entityID string, confidence float64, ts time.Time) CVEvent {
	return CVEvent{
		Kind:       kind,
		EntityID:   entityID,
		Confidence: confidence,
		Timestamp:  ts,
	}
}

// At returns a copy of e with its position set.
func (e CVEvent) At(p geometry.Point) CVEvent {
	e.pos = &p
	return e
}

// Position returns the event position, if it has one.
func (e CVEvent) Position() (geometry.Point, bool) {
	if e.pos == nil {
		return geometry.Point{}, false
	}
	return *e.pos, true
}

// With returns a copy of e with metadata key set to value.
func (e CVEvent) With(key string, value any) CVEvent {
	m := make(map[string]any, len(e.meta)+1)
	maps.Copy(m, e.meta)
	m[key] = value
	e.meta = m
	return e
}

// Meta returns the metadata value stored under key.
func (e CVEvent) Meta(key string) (any, bool) {
	v, ok := e.meta[key]
	return v, ok
}

// Metadata returns a copy of the event metadata.
func (e CVEvent) Metadata() map[string]any {
	return maps.Clone(e.meta)
}

type jsonEvent struct {
	Kind       Kind            `json:"kind"`
	EntityID   string          `json:"entityId,omitempty"`
	Confidence float64         `json:"confidence"`
	Position   *geometry.Point `json:"position,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// MarshalJSON encodes the event including its metadata.
func (e CVEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonEvent{
		Kind:       e.Kind,
		EntityID:   e.EntityID,
		Confidence: e.Confidence,
		Position:   e.pos,
		Metadata:   e.meta,
		Timestamp:  e.Timestamp,
	})
}

// UnmarshalJSON decodes an event encoded by MarshalJSON.
func (e *CVEvent) UnmarshalJSON(data []byte) error {
	var j jsonEvent
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*e = CVEvent{
		Kind:       j.Kind,
		EntityID:   j.EntityID,
		Confidence: j.Confidence,
		Timestamp:  j.Timestamp,
		pos:        j.Position,
		meta:       j.Metadata,
	}
	return nil
}

package detector

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ayusman/playsight/internal/geometry"
)

// ErrInvalidObservation is returned by Validate for malformed observations.
var ErrInvalidObservation = errors.New("invalid observation")

// Chirality is the left/right identity of a hand.
type Chirality string

const (
	ChiralityUnknown Chirality = "unknown"
	ChiralityLeft    Chirality = "left"
	ChiralityRight   Chirality = "right"
)

// Flip returns the opposite chirality. Unknown stays unknown.
func (c Chirality) Flip() Chirality {
	switch c {
	case ChiralityLeft:
		return ChiralityRight
	case ChiralityRight:
		return ChiralityLeft
	default:
		return ChiralityUnknown
	}
}

// HandObservation is one hand seen in one frame.
// ID is empty on raw observations and filled in by the identity tracker.
type HandObservation struct {
	ID          string        `json:"id,omitempty"`
	Chirality   Chirality     `json:"chirality"`
	Landmarks   HandLandmarks `json:"landmarks"`
	Confidence  float64       `json:"confidence"`
	BoundingBox geometry.Rect `json:"boundingBox"`
}

// Validate checks that all landmarks and the confidence are in range.
func (h *HandObservation) Validate() error {
	if !validConfidence(h.Confidence) {
		return fmt.Errorf("%w: hand confidence %v", ErrInvalidObservation, h.Confidence)
	}
	for i, p := range h.Landmarks {
		if !p.InUnitSquare() {
			return fmt.Errorf("%w: landmark %d out of range (%v, %v)", ErrInvalidObservation, i, p.X, p.Y)
		}
	}
	return nil
}

// Center returns the center of the hand's bounding box. When the recognizer
// did not supply a box, the landmark bounds are used.
func (h *HandObservation) Center() geometry.Point {
	if h.BoundingBox.IsEmpty() {
		return h.Landmarks.Bounds().Center()
	}
	return h.BoundingBox.Center()
}

// RectangleObservation is a candidate quadrilateral (board) in one frame.
// Corners are ordered top-left, top-right, bottom-right, bottom-left.
type RectangleObservation struct {
	ID          string            `json:"id,omitempty"`
	Corners     [4]geometry.Point `json:"corners"`
	Confidence  float64           `json:"confidence"`
	BoundingBox geometry.Rect     `json:"boundingBox"`
}

// Validate checks that the corners and the confidence are in range.
func (r *RectangleObservation) Validate() error {
	if !validConfidence(r.Confidence) {
		return fmt.Errorf("%w: rectangle confidence %v", ErrInvalidObservation, r.Confidence)
	}
	for i, p := range r.Corners {
		if !p.InUnitSquare() {
			return fmt.Errorf("%w: corner %d out of range", ErrInvalidObservation, i)
		}
	}
	return nil
}

// Center returns the center of the rectangle's bounding box.
func (r *RectangleObservation) Center() geometry.Point {
	if r.BoundingBox.IsEmpty() {
		return geometry.Bounds(r.Corners[:]...).Center()
	}
	return r.BoundingBox.Center()
}

// GlyphObservation is a recognized text glyph, usually a handwritten digit.
type GlyphObservation struct {
	Value       string        `json:"value"`
	BoundingBox geometry.Rect `json:"boundingBox"`
	Confidence  float64       `json:"confidence"`
}

// Validate checks the glyph box and confidence.
func (g *GlyphObservation) Validate() error {
	if g.Value == "" {
		return fmt.Errorf("%w: empty glyph", ErrInvalidObservation)
	}
	if !validConfidence(g.Confidence) {
		return fmt.Errorf("%w: glyph confidence %v", ErrInvalidObservation, g.Confidence)
	}
	c := g.BoundingBox.Center()
	if !c.InUnitSquare() {
		return fmt.Errorf("%w: glyph box out of range", ErrInvalidObservation)
	}
	return nil
}

// Observations is everything the recognizer reported for one frame.
type Observations struct {
	Timestamp  time.Time              `json:"timestamp"`
	Hands      []HandObservation      `json:"hands"`
	Rectangles []RectangleObservation `json:"rectangles"`
	Glyphs     []GlyphObservation     `json:"glyphs"`
}

// Empty reports whether the frame carries no observations at all.
func (o *Observations) Empty() bool {
	return len(o.Hands) == 0 && len(o.Rectangles) == 0 && len(o.Glyphs) == 0
}

// Sanitized returns a copy of o with every invalid observation removed and
// the number of observations dropped.
func (o *Observations) Sanitized() (Observations, int) {
	out := Observations{Timestamp: o.Timestamp}
	dropped := 0

	for i := range o.Hands {
		if o.Hands[i].Validate() != nil {
			dropped++
			continue
		}
		out.Hands = append(out.Hands, o.Hands[i])
	}
	for i := range o.Rectangles {
		if o.Rectangles[i].Validate() != nil {
			dropped++
			continue
		}
		out.Rectangles = append(out.Rectangles, o.Rectangles[i])
	}
	for i := range o.Glyphs {
		if o.Glyphs[i].Validate() != nil {
			dropped++
			continue
		}
		out.Glyphs = append(out.Glyphs, o.Glyphs[i])
	}

	return out, dropped
}

func validConfidence(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 1
}

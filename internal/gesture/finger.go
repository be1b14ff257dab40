// Package gesture classifies a single hand observation into raised fingers,
// an openness score and a discrete pose.
package gesture

import (
	"strings"

	"github.com/ayusman/playsight/internal/detector"
)

// Finger identifies one of the five fingers.
type Finger uint8

const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Little
)

// NumFingers is the number of fingers on a hand.
const NumFingers = 5

// AllFingers lists the fingers from thumb to little.
var AllFingers = [NumFingers]Finger{Thumb, Index, Middle, Ring, Little}

var fingerNames = [NumFingers]string{"thumb", "index", "middle", "ring", "little"}

func (f Finger) String() string {
	if int(f) < NumFingers {
		return fingerNames[f]
	}
	return "unknown"
}

// chain returns the landmark indices of f ordered tip, distal, proximal,
// metacarpal.
func (f Finger) chain() [4]int {
	switch f {
	case Thumb:
		return [4]int{detector.ThumbTip, detector.ThumbIP, detector.ThumbMCP, detector.ThumbCMC}
	case Index:
		return [4]int{detector.IndexTip, detector.IndexDIP, detector.IndexPIP, detector.IndexMCP}
	case Middle:
		return [4]int{detector.MiddleTip, detector.MiddleDIP, detector.MiddlePIP, detector.MiddleMCP}
	case Ring:
		return [4]int{detector.RingTip, detector.RingDIP, detector.RingPIP, detector.RingMCP}
	default:
		return [4]int{detector.PinkyTip, detector.PinkyDIP, detector.PinkyPIP, detector.PinkyMCP}
	}
}

// FingerSet is a set of fingers stored as a bitmask.
type FingerSet uint8

// NewFingerSet returns the set containing fingers.
func NewFingerSet(fingers ...Finger) FingerSet {
	var s FingerSet
	for _, f := range fingers {
		s = s.Add(f)
	}
	return s
}

// Has reports whether f is in the set.
func (s FingerSet) Has(f Finger) bool {
	return s&(1<<f) != 0
}

// Add returns the set with f added.
func (s FingerSet) Add(f Finger) FingerSet {
	return s | 1<<f
}

// Len returns the number of fingers in the set.
func (s FingerSet) Len() int {
	n := 0
	for _, f := range AllFingers {
		if s.Has(f) {
			n++
		}
	}
	return n
}

// List returns the fingers in the set, thumb first.
func (s FingerSet) List() []Finger {
	var out []Finger
	for _, f := range AllFingers {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Only reports whether the set is exactly fingers.
func (s FingerSet) Only(fingers ...Finger) bool {
	return s == NewFingerSet(fingers...)
}

func (s FingerSet) String() string {
	names := make([]string, 0, NumFingers)
	for _, f := range s.List() {
		names = append(names, f.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// FingerDetectionResult is the finger analysis of one hand.
type FingerDetectionResult struct {
	Count      int                `json:"count"`
	Confidence float64            `json:"confidence"`
	Raised     FingerSet          `json:"raised"`
	Chirality  detector.Chirality `json:"chirality"`
}

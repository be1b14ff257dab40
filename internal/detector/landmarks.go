// Package detector defines the raw observations produced by the external
// recognizer and the observation-source contract consumed by the pipeline.
package detector

import (
	"github.com/ayusman/playsight/internal/geometry"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// HandLandmarks holds the 21 skeleton points of one hand in normalized image space.
type HandLandmarks [NumLandmarks]geometry.Point

// Points returns the landmarks as a slice.
func (l *HandLandmarks) Points() []geometry.Point {
	return l[:]
}

// HandSize returns the wrist to middle-finger MCP distance, the scale
// reference used to make hand measurements size invariant.
func (l *HandLandmarks) HandSize() float64 {
	return geometry.Distance(l[Wrist], l[MiddleMCP])
}

// Normalize returns the landmarks translated so the wrist is at the origin
// and scaled so that the wrist to middle MCP distance is 1.0.
// If the hand size is degenerate, the landmarks are only translated.
func (l *HandLandmarks) Normalize() HandLandmarks {
	var normalized HandLandmarks

	wrist := l[Wrist]
	for i := 0; i < NumLandmarks; i++ {
		normalized[i] = l[i].Sub(wrist)
	}

	scale := l.HandSize()
	if scale < 1e-10 {
		return normalized
	}

	for i := 0; i < NumLandmarks; i++ {
		normalized[i] = normalized[i].Scale(1 / scale)
	}
	return normalized
}

// Bounds returns the bounding box of all landmarks.
func (l *HandLandmarks) Bounds() geometry.Rect {
	return geometry.Bounds(l[:]...)
}

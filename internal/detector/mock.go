package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/playsight/internal/geometry"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	obs   Observations
	err   error
	debug bool
	text  bool
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandObservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs.Hands = hands
}

// SetObservations sets the full frame result returned by Detect.
func (m *MockDetector) SetObservations(obs Observations) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = obs
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured observations or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (Observations, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Observations{}, m.err
	}
	return m.obs, nil
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) SetDebugMode(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debug = enabled
}

// DebugMode reports the last value passed to SetDebugMode.
func (m *MockDetector) DebugMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debug
}

func (m *MockDetector) SetTextRecognition(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = enabled
}

// TextRecognition reports the last value passed to SetTextRecognition.
func (m *MockDetector) TextRecognition() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Hand wraps landmarks into a right-hand observation with the given
// confidence, deriving the bounding box from the landmarks.
func Hand(landmarks HandLandmarks, confidence float64) HandObservation {
	return HandObservation{
		Chirality:   ChiralityRight,
		Landmarks:   landmarks,
		Confidence:  confidence,
		BoundingBox: landmarks.Bounds(),
	}
}

// Translate returns the landmarks shifted by (dx, dy).
func (l HandLandmarks) Translate(dx, dy float64) HandLandmarks {
	var out HandLandmarks
	for i, p := range l {
		out[i] = p.Add(geometry.Pt(dx, dy))
	}
	return out
}

// Fixtures below describe a right hand, palm towards an un-mirrored camera,
// wrist at (0.5, 0.8). Y grows downwards.

// curled finger chains shared by the closed-hand fixtures.
func setCurledFingers(l *HandLandmarks) {
	l[IndexMCP] = geometry.Pt(0.56, 0.68)
	l[IndexPIP] = geometry.Pt(0.56, 0.64)
	l[IndexDIP] = geometry.Pt(0.54, 0.67)
	l[IndexTip] = geometry.Pt(0.53, 0.70)

	l[MiddleMCP] = geometry.Pt(0.50, 0.66)
	l[MiddlePIP] = geometry.Pt(0.50, 0.62)
	l[MiddleDIP] = geometry.Pt(0.48, 0.65)
	l[MiddleTip] = geometry.Pt(0.48, 0.69)

	l[RingMCP] = geometry.Pt(0.45, 0.68)
	l[RingPIP] = geometry.Pt(0.45, 0.64)
	l[RingDIP] = geometry.Pt(0.44, 0.67)
	l[RingTip] = geometry.Pt(0.44, 0.70)

	l[PinkyMCP] = geometry.Pt(0.41, 0.71)
	l[PinkyPIP] = geometry.Pt(0.40, 0.68)
	l[PinkyDIP] = geometry.Pt(0.40, 0.71)
	l[PinkyTip] = geometry.Pt(0.41, 0.73)
}

func setTuckedThumb(l *HandLandmarks) {
	l[ThumbCMC] = geometry.Pt(0.55, 0.76)
	l[ThumbMCP] = geometry.Pt(0.58, 0.71)
	l[ThumbIP] = geometry.Pt(0.56, 0.68)
	l[ThumbTip] = geometry.Pt(0.53, 0.69)
}

func setExtendedIndex(l *HandLandmarks) {
	l[IndexMCP] = geometry.Pt(0.55, 0.68)
	l[IndexPIP] = geometry.Pt(0.57, 0.55)
	l[IndexDIP] = geometry.Pt(0.58, 0.45)
	l[IndexTip] = geometry.Pt(0.58, 0.35)
}

func setExtendedMiddle(l *HandLandmarks) {
	l[MiddleMCP] = geometry.Pt(0.50, 0.66)
	l[MiddlePIP] = geometry.Pt(0.50, 0.52)
	l[MiddleDIP] = geometry.Pt(0.50, 0.40)
	l[MiddleTip] = geometry.Pt(0.50, 0.28)
}

// FistLandmarks returns a closed fist: every finger curled, thumb tucked.
func FistLandmarks() HandLandmarks {
	var l HandLandmarks
	l[Wrist] = geometry.Pt(0.5, 0.8)
	setCurledFingers(&l)
	setTuckedThumb(&l)
	return l
}

// OpenPalmLandmarks returns an open palm with all five fingers extended.
func OpenPalmLandmarks() HandLandmarks {
	var l HandLandmarks
	l[Wrist] = geometry.Pt(0.5, 0.8)

	// Thumb extended to the side
	l[ThumbCMC] = geometry.Pt(0.55, 0.75)
	l[ThumbMCP] = geometry.Pt(0.62, 0.70)
	l[ThumbIP] = geometry.Pt(0.68, 0.65)
	l[ThumbTip] = geometry.Pt(0.73, 0.60)

	setExtendedIndex(&l)
	setExtendedMiddle(&l)

	l[RingMCP] = geometry.Pt(0.45, 0.68)
	l[RingPIP] = geometry.Pt(0.43, 0.55)
	l[RingDIP] = geometry.Pt(0.42, 0.45)
	l[RingTip] = geometry.Pt(0.42, 0.35)

	l[PinkyMCP] = geometry.Pt(0.40, 0.70)
	l[PinkyPIP] = geometry.Pt(0.37, 0.60)
	l[PinkyDIP] = geometry.Pt(0.35, 0.50)
	l[PinkyTip] = geometry.Pt(0.34, 0.42)

	return l
}

// ScissorsLandmarks returns index and middle extended, the rest curled.
func ScissorsLandmarks() HandLandmarks {
	l := FistLandmarks()
	setExtendedIndex(&l)
	setExtendedMiddle(&l)
	return l
}

// PointingLandmarks returns only the index finger extended.
func PointingLandmarks() HandLandmarks {
	l := FistLandmarks()
	setExtendedIndex(&l)
	return l
}

// ThumbsUpLandmarks returns a thumb extended upward with the other fingers curled.
func ThumbsUpLandmarks() HandLandmarks {
	var l HandLandmarks
	l[Wrist] = geometry.Pt(0.5, 0.8)

	l[ThumbCMC] = geometry.Pt(0.55, 0.75)
	l[ThumbMCP] = geometry.Pt(0.58, 0.65)
	l[ThumbIP] = geometry.Pt(0.58, 0.50)
	l[ThumbTip] = geometry.Pt(0.58, 0.35)

	l[IndexMCP] = geometry.Pt(0.55, 0.70)
	l[IndexPIP] = geometry.Pt(0.55, 0.68)
	l[IndexDIP] = geometry.Pt(0.52, 0.70)
	l[IndexTip] = geometry.Pt(0.50, 0.72)

	l[MiddleMCP] = geometry.Pt(0.50, 0.68)
	l[MiddlePIP] = geometry.Pt(0.50, 0.66)
	l[MiddleDIP] = geometry.Pt(0.47, 0.68)
	l[MiddleTip] = geometry.Pt(0.45, 0.70)

	l[RingMCP] = geometry.Pt(0.45, 0.70)
	l[RingPIP] = geometry.Pt(0.45, 0.68)
	l[RingDIP] = geometry.Pt(0.42, 0.70)
	l[RingTip] = geometry.Pt(0.40, 0.72)

	l[PinkyMCP] = geometry.Pt(0.40, 0.72)
	l[PinkyPIP] = geometry.Pt(0.40, 0.70)
	l[PinkyDIP] = geometry.Pt(0.37, 0.72)
	l[PinkyTip] = geometry.Pt(0.38, 0.73)

	return l
}

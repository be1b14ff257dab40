package detector

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"github.com/ayusman/playsight/internal/capture"
)

// Detector turns one camera frame into raw observations.
type Detector interface {
	// Detect analyzes a video frame and returns everything recognized in it.
	// Returns empty Observations if nothing is detected.
	Detect(frame *gocv.Mat) (Observations, error)

	// SetDebugMode toggles recognizer debug output.
	SetDebugMode(enabled bool)

	// SetTextRecognition toggles the secondary glyph recognizer.
	SetTextRecognition(enabled bool)

	// Close releases any resources held by the detector.
	Close() error
}

// Source is the observation source a capture session consumes: a camera and
// the recognizer that runs on its frames.
type Source interface {
	// Open acquires the camera. Permission and availability failures wrap
	// capture.ErrPermissionDenied and capture.ErrDeviceUnavailable.
	Open() error

	// Next captures one frame and returns its observations.
	Next() (Observations, error)

	SetDebugMode(enabled bool)
	SetTextRecognition(enabled bool)

	// PreviewHandle exposes the camera for preview rendering.
	PreviewHandle() capture.Camera

	Close() error
}

// Config holds configuration options for the recognizer.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// IdleTimeout shuts the recognizer process down after this long without frames.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		IdleTimeout:     30 * time.Second,
	}
}

// CameraSource is a Source backed by a capture.Camera and a Detector.
type CameraSource struct {
	camera   capture.Camera
	detector Detector
	clock    clock.Clock
}

// NewCameraSource couples camera and detector into a Source.
func NewCameraSource(camera capture.Camera, d Detector) *CameraSource {
	return &CameraSource{
		camera:   camera,
		detector: d,
		clock:    clock.New(),
	}
}

// SetClock replaces the clock frames are stamped with.
func (s *CameraSource) SetClock(c clock.Clock) {
	s.clock = c
}

// Open opens the camera.
func (s *CameraSource) Open() error {
	return s.camera.Open()
}

// Next reads one frame and runs the detector on it.
func (s *CameraSource) Next() (Observations, error) {
	frame, err := s.camera.ReadFrame()
	if err != nil {
		return Observations{}, fmt.Errorf("read frame: %w", err)
	}
	defer frame.Close()

	obs, err := s.detector.Detect(frame)
	if err != nil {
		return Observations{}, fmt.Errorf("detect: %w", err)
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = s.clock.Now()
	}
	return obs, nil
}

func (s *CameraSource) SetDebugMode(enabled bool) {
	s.detector.SetDebugMode(enabled)
}

func (s *CameraSource) SetTextRecognition(enabled bool) {
	s.detector.SetTextRecognition(enabled)
}

// PreviewHandle returns the underlying camera.
func (s *CameraSource) PreviewHandle() capture.Camera {
	return s.camera
}

// Close stops the detector and closes the camera.
func (s *CameraSource) Close() error {
	return multierr.Append(s.detector.Close(), s.camera.Close())
}

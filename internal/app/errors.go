package app

import (
	"errors"
	"fmt"

	"github.com/ayusman/playsight/internal/capture"
)

var (
	// ErrPermissionDenied is returned by StartSession when camera access is
	// refused. The caller must ask again before retrying.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrCapabilityUnavailable is returned by StartSession when no usable
	// camera exists.
	ErrCapabilityUnavailable = errors.New("camera capability unavailable")
)

// SessionError reports any other failure to start a session.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// classifyStartError maps an observation source open failure onto the
// session start error surface.
func classifyStartError(err error) error {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
	default:
		return &SessionError{Op: "open", Err: err}
	}
}

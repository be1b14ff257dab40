package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/playsight/internal/app"
)

// SessionHandler starts, stops and reports the capture session.
type SessionHandler struct {
	app    *app.App
	logger *zap.SugaredLogger
}

// NewSessionHandler creates a new SessionHandler for a.
func NewSessionHandler(a *app.App, logger *zap.SugaredLogger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionHandler{app: a, logger: logger.Named("api")}
}

// ServeHTTP handles /api/session.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.app.Session())
	case http.MethodPost:
		h.start(w, r)
	case http.MethodDelete:
		h.stop(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// start handles POST /api/session.
func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	err := h.app.StartSession(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.app.Session())
	case errors.Is(err, app.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Camera permission denied")
	case errors.Is(err, app.ErrCapabilityUnavailable):
		writeError(w, http.StatusServiceUnavailable, "No camera available")
	default:
		h.logger.Errorw("failed to start session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start session")
	}
}

// stop handles DELETE /api/session.
func (h *SessionHandler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.app.StopSession(); err != nil {
		// The session is stopped either way; only teardown failed.
		h.logger.Warnw("session teardown failed", "error", err)
	}
	writeJSON(w, http.StatusOK, h.app.Session())
}

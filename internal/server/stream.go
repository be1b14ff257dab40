package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/playsight/internal/capture"
)

const previewInterval = 66 * time.Millisecond // ~15 FPS

// StreamHandler serves MJPEG frames from the session camera.
type StreamHandler struct {
	camera func() capture.Camera
	logger *zap.SugaredLogger
}

// NewStreamHandler creates a new StreamHandler. camera is asked for the
// preview camera on every request and may return nil.
func NewStreamHandler(camera func() capture.Camera, logger *zap.SugaredLogger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StreamHandler{camera: camera, logger: logger.Named("stream")}
}

// ServeHTTP streams MJPEG frames until the client disconnects or the camera
// closes.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	camera := h.camera()
	if camera == nil || !camera.IsOpen() {
		http.Error(w, "No active session", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(previewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		if !camera.IsOpen() {
			return
		}
		frame, err := camera.ReadFrame()
		if err != nil {
			continue
		}

		buf, err := gocv.IMEncode(".jpg", *frame)
		frame.Close()
		if err != nil {
			h.logger.Debugw("jpeg encode failed", "error", err)
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		_, err = w.Write(buf.GetBytes())
		buf.Close()
		if err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

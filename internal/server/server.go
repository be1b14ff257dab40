// Package server provides the HTTP server for the playsight perception service.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/playsight/internal/app"
	"github.com/ayusman/playsight/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string

	// App is the session controller. Without it only health and static
	// routes are served.
	App *app.App

	Logger *zap.SugaredLogger
}

// Server represents the HTTP server for the playsight application.
type Server struct {
	config Config
	mux    *http.ServeMux
	logger *zap.SugaredLogger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		logger: config.Logger.Named("server"),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	a := s.config.App
	if a != nil {
		s.mux.Handle("/api/session", api.NewSessionHandler(a, s.config.Logger))
		s.mux.Handle("/api/events", NewEventsHandler(a, s.config.Logger))
		s.mux.Handle("/api/stream", NewStreamHandler(a.Preview, s.config.Logger))

		if st := a.Store(); st != nil {
			history := api.NewHistoryHandler(st)
			s.mux.Handle("/api/sessions", history)
			s.mux.Handle("/api/sessions/", history)
		}
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.App != nil {
		response["session"] = s.config.App.Active()
		response["games"] = app.Games()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Infow("listening", "addr", addr)
	return http.ListenAndServe(addr, s)
}

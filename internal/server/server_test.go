package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/ayusman/playsight/internal/app"
	"github.com/ayusman/playsight/internal/capture"
	"github.com/ayusman/playsight/internal/detector"
	"github.com/ayusman/playsight/internal/events"
	"github.com/ayusman/playsight/internal/geometry"
	"github.com/ayusman/playsight/internal/store"
)

// newTestApp creates an App over a mock camera and detector. The clock is
// mocked so the frame loop stays idle; tests publish on the hub directly.
func newTestApp(t *testing.T, st *store.Store) *app.App {
	t.Helper()

	a := app.New(app.Config{
		Store:  st,
		Source: detector.NewCameraSource(capture.NewMockCamera(nil, false), detector.NewMockDetector()),
		Logger: zaptest.NewLogger(t).Sugar(),
		Clock:  clock.NewMock(),
	})
	t.Cleanup(func() { a.StopSession() })
	return a
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// waitForConsumer waits until the hub has a subscription for consumer.
func waitForConsumer(t *testing.T, a *app.App, consumer string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Contains(a.Hub().Consumers(), consumer) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("consumer %q never subscribed", consumer)
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})

	t.Run("reports session and games with an app", func(t *testing.T) {
		s := New(Config{App: newTestApp(t, nil)})

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		var response struct {
			Session bool     `json:"session"`
			Games   []string `json:"games"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Session {
			t.Error("expected no active session")
		}
		if !slices.Equal(response.Games, []string{"fingers", "rps", "sudoku"}) {
			t.Errorf("unexpected games %v", response.Games)
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/api/session", "/api/sessions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_HistoryRequiresStore(t *testing.T) {
	s := New(Config{App: newTestApp(t, nil)})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_StreamWithoutSession(t *testing.T) {
	s := New(Config{App: newTestApp(t, nil)})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestEventsHandler_UnknownGameCloses(t *testing.T) {
	a := newTestApp(t, nil)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/events?game=chess"), nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure, got %v", err)
	}
	if n := a.Hub().Len(); n != 0 {
		t.Errorf("expected no subscriptions, got %d", n)
	}
}

func TestEventsHandler_InvalidConfigCloses(t *testing.T) {
	a := newTestApp(t, nil)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	for _, query := range []string{"?game=sudoku&gridSize=7", "?game=rps&kinds=bogus", "?game=rps&color=red"} {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/events"+query), nil)
		if err != nil {
			t.Fatalf("%s: dial error = %v", query, err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("%s: expected normal closure, got %v", query, err)
		}
		conn.Close()
	}
}

func TestEventsHandler_StreamsFilteredEvents(t *testing.T) {
	a := newTestApp(t, nil)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/events?game=sudoku&kinds=sudokuGridDetected,sudokuCellWritten&gridSize=4"), nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	waitForConsumer(t, a, "sudoku")
	if got := a.Pipeline().GridSize(); got != 4 {
		t.Errorf("grid size = %d, want 4", got)
	}
	if err := a.StartSession(t.Context()); err != nil {
		t.Fatalf("StartSession error = %v", err)
	}

	now := time.Now()
	a.Hub().Publish(events.New(events.HandDetected, "h1", 0.9, now))
	a.Hub().Publish(events.New(events.SudokuCellWritten, "b1", 0.8, now).
		At(geometry.Pt(0.5, 0.5)).
		With("row", 1).
		With("col", 2).
		With("number", 3))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.CVEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read error = %v", err)
	}
	if ev.Kind != events.SudokuCellWritten {
		t.Fatalf("expected %s, got %s", events.SudokuCellWritten, ev.Kind)
	}
	if ev.EntityID != "b1" {
		t.Errorf("expected entity b1, got %s", ev.EntityID)
	}
	if p, ok := ev.Position(); !ok || p != geometry.Pt(0.5, 0.5) {
		t.Errorf("unexpected position %v (%v)", p, ok)
	}

	// Stopping the session ends the stream.
	if err := a.StopSession(); err != nil {
		t.Fatalf("StopSession error = %v", err)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure after stop, got %v", err)
	}
}

func TestEventsHandler_ClientDisconnectUnsubscribes(t *testing.T) {
	a := newTestApp(t, nil)
	ts := httptest.NewServer(New(Config{App: a}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/events?game=rps"), nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	waitForConsumer(t, a, "rps")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for a.Hub().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not closed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscriptionParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/events?game=sudoku&kinds=handDetected,%20handLost,&gridSize=9", nil)
	game, kinds, cfg := subscriptionParams(req)

	if game != "sudoku" {
		t.Errorf("game = %q", game)
	}
	if !slices.Equal(kinds, []events.Kind{events.HandDetected, events.HandLost}) {
		t.Errorf("kinds = %v", kinds)
	}
	if len(cfg) != 1 || cfg["gridSize"] != "9" {
		t.Errorf("cfg = %v", cfg)
	}
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}

		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}

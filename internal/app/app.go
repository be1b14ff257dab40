// Package app wires the observation source, the perception pipeline and the
// event consumers into capture sessions.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/playsight/internal/audio"
	"github.com/ayusman/playsight/internal/capture"
	"github.com/ayusman/playsight/internal/config"
	"github.com/ayusman/playsight/internal/detector"
	"github.com/ayusman/playsight/internal/events"
	"github.com/ayusman/playsight/internal/store"
)

// Internal hub consumers.
const (
	consumerAnalytics = "analytics"
	consumerAudio     = "audio"
	consumerMonitor   = "monitor"
)

// Config holds configuration options for the application.
type Config struct {
	// Store records sessions and their events. Optional.
	Store *store.Store

	// Source provides observations. When nil a camera source is built
	// from CameraID, using the external recognizer when it is installed.
	Source   detector.Source
	CameraID int

	// SoundDir holds sound packs. Empty disables audio feedback.
	SoundDir  string
	SoundPack string

	// Tuning defaults to config.Default().
	Tuning *config.Tuning

	Logger *zap.SugaredLogger
	Clock  clock.Clock

	// NewID mints tracked entity ids. Defaults to random UUIDs.
	NewID func() string
}

// SessionInfo describes the current or last session.
type SessionInfo struct {
	Active    bool          `json:"active"`
	ID        string        `json:"id,omitempty"`
	StartedAt time.Time     `json:"startedAt,omitzero"`
	Stats     PipelineStats `json:"stats"`
	Consumers []string      `json:"consumers"`
	Dropped   uint64        `json:"dropped"`
}

// App is the perception session controller.
type App struct {
	config   Config
	tuning   config.Tuning
	logger   *zap.SugaredLogger
	clock    clock.Clock
	source   detector.Source
	hub      *events.Hub
	pipeline *Pipeline
	sounds   *audio.Manager
	player   *audio.Player

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	sessionID string
	startedAt time.Time

	text atomic.Bool
	last atomic.Pointer[events.CVEvent]
}

// New creates a new App with the given configuration.
func New(config Config) *App {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	tun := tuningOrDefault(config.Tuning)

	a := &App{
		config: config,
		tuning: tun,
		logger: config.Logger.Named("app"),
		clock:  config.Clock,
		source: config.Source,
		hub: events.NewHub(events.HubConfig{
			BufferSize: tun.EventBuffer,
			Logger:     config.Logger,
		}),
	}
	// Consumers may subscribe before the first session; publishing stays
	// off until StartSession.
	a.hub.Stop()

	a.pipeline = NewPipeline(PipelineConfig{
		Tuning: tun,
		Hub:    a.hub,
		Logger: config.Logger,
		NewID:  config.NewID,
	})

	if a.source == nil {
		a.source = a.defaultSource()
	}

	if config.SoundDir != "" {
		a.sounds = audio.NewManager(config.SoundDir, config.Logger)
		if err := a.sounds.Discover(); err != nil {
			a.logger.Warnw("sound pack discovery failed", "dir", config.SoundDir, "error", err)
		}
		a.player = audio.NewPlayer(a.sounds, audio.PlayerConfig{
			Pack:   config.SoundPack,
			Logger: config.Logger,
		})
	}

	return a
}

func tuningOrDefault(t *config.Tuning) config.Tuning {
	if t == nil {
		return config.Default()
	}
	return *t
}

// defaultSource builds a camera source, falling back to a mock detector
// when the recognizer is not installed.
func (a *App) defaultSource() detector.Source {
	camera := capture.NewCamera(a.config.CameraID)

	var d detector.Detector
	if rec, err := detector.NewRecognizerDetector(detector.DefaultConfig(), a.config.Logger); err == nil {
		a.logger.Info("using external recognizer")
		d = rec
	} else {
		a.logger.Warnw("recognizer not available, using mock detector", "error", err)
		d = detector.NewMockDetector()
	}
	src := detector.NewCameraSource(camera, d)
	src.SetClock(a.clock)
	return src
}

// StartSession opens the observation source and starts the frame loop.
// Starting an active session does nothing. Failures are ErrPermissionDenied,
// ErrCapabilityUnavailable or a *SessionError.
func (a *App) StartSession(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &SessionError{Op: "start", Err: err}
	}

	if err := a.source.Open(); err != nil {
		err = classifyStartError(err)
		a.logger.Warnw("session start failed", "error", err)
		return err
	}

	a.pipeline.Reset()
	a.source.SetTextRecognition(a.text.Load())
	a.hub.Reopen()

	a.sessionID = uuid.NewString()
	a.startedAt = a.clock.Now()
	a.last.Store(nil)

	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.startConsumers(loopCtx)

	ticker := a.clock.Ticker(a.tuning.FrameInterval())
	a.wg.Add(1)
	go a.run(loopCtx, ticker)

	a.running = true
	a.logger.Infow("session started", "session", a.sessionID, "interval", a.tuning.FrameInterval())
	return nil
}

func (a *App) startConsumers(ctx context.Context) {
	monitor := a.hub.Subscribe(consumerMonitor, events.HandDetected, events.HandLost,
		events.SudokuGridDetected, events.SudokuGridLost, events.GestureDetected)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for ev := range monitor.All() {
			a.last.Store(&ev)
		}
	}()

	if s := a.config.Store; s != nil {
		if err := s.Sessions().Create(&store.Session{ID: a.sessionID, StartedAt: a.startedAt}); err != nil {
			a.logger.Warnw("session will not be recorded", "session", a.sessionID, "error", err)
		} else {
			sub := a.hub.Subscribe(consumerAnalytics)
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.record(a.sessionID, sub)
			}()
		}
	}

	if a.player != nil {
		if kinds := a.player.Kinds(); len(kinds) > 0 {
			sub := a.hub.Subscribe(consumerAudio, kinds...)
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.player.Run(ctx, sub)
			}()
		}
	}
}

// record appends every event of sub to the session log.
func (a *App) record(sessionID string, sub *events.Subscription) {
	repo := a.config.Store.Events()
	for ev := range sub.All() {
		if err := repo.Append(toStoreEvent(sessionID, ev)); err != nil {
			a.logger.Warnw("failed to record event", "kind", ev.Kind, "error", err)
		}
	}
}

func toStoreEvent(sessionID string, ev events.CVEvent) *store.Event {
	e := &store.Event{
		SessionID:  sessionID,
		Kind:       string(ev.Kind),
		EntityID:   ev.EntityID,
		Confidence: ev.Confidence,
		CreatedAt:  ev.Timestamp,
	}
	if p, ok := ev.Position(); ok {
		e.X, e.Y = &p.X, &p.Y
	}
	if meta := ev.Metadata(); len(meta) > 0 {
		if data, err := json.Marshal(meta); err == nil {
			e.Metadata = data
		}
	}
	return e
}

// run is the frame loop. Frames are pulled on every tick and never queued;
// a source error counts as a frame without observations.
func (a *App) run(ctx context.Context, ticker *clock.Ticker) {
	defer a.wg.Done()
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			obs, err := a.source.Next()
			if err != nil {
				if !failing {
					a.logger.Warnw("observation source failing", "error", err)
					failing = true
				}
				obs = detector.Observations{}
			} else if failing {
				a.logger.Info("observation source recovered")
				failing = false
			}
			if obs.Timestamp.IsZero() {
				obs.Timestamp = a.clock.Now()
			}
			a.pipeline.Process(obs)
		}
	}
}

// StopSession ends the session: every subscription is closed, the frame
// loop is stopped, tracked state is discarded and the source is closed.
// Stopping an inactive session leaves the same final state.
func (a *App) StopSession() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Close the hub first so nothing is published once stop begins.
	a.hub.Stop()

	if !a.running {
		a.pipeline.Reset()
		a.text.Store(false)
		return nil
	}

	a.cancel()
	a.wg.Wait()
	a.pipeline.Reset()
	a.text.Store(false)

	err := a.source.Close()
	if s := a.config.Store; s != nil {
		if endErr := s.Sessions().End(a.sessionID, a.clock.Now()); endErr != nil && !errors.Is(endErr, store.ErrNotFound) {
			err = multierr.Append(err, endErr)
		}
	}

	a.running = false
	a.logger.Infow("session stopped", "session", a.sessionID, "stats", a.pipeline.Stats())
	return err
}

// Subscribe opens the event stream of a game. kinds filters the stream;
// none means every kind. Unknown games, unknown kinds and invalid
// configuration yield a stream that has already finished.
func (a *App) Subscribe(gameID string, kinds []events.Kind, cfg map[string]any) *events.Subscription {
	game, ok := LookupGame(gameID)
	if !ok {
		a.logger.Warnw("unknown game", "game", gameID)
		return events.Finished(gameID)
	}
	for _, k := range kinds {
		if !k.Valid() {
			a.logger.Warnw("unknown event kind", "game", gameID, "kind", k)
			return events.Finished(gameID)
		}
	}
	gc, err := DecodeGameConfig(cfg)
	if err != nil {
		a.logger.Warnw("invalid game config", "game", gameID, "error", err)
		return events.Finished(gameID)
	}

	if gc.GridSize != 0 {
		a.pipeline.SetGridSize(gc.GridSize)
	}
	if game.TextRecognition {
		a.text.Store(true)
		a.source.SetTextRecognition(true)
	}

	a.logger.Debugw("game subscribed", "game", gameID, "kinds", kinds)
	return a.hub.Subscribe(gameID, kinds...)
}

// Unsubscribe closes the event stream of a game.
func (a *App) Unsubscribe(gameID string) {
	a.hub.Unsubscribe(gameID)
}

// SetDebugMode toggles recognizer debug output.
func (a *App) SetDebugMode(enabled bool) {
	a.source.SetDebugMode(enabled)
}

// Active reports whether a session is running.
func (a *App) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Session returns the state of the current session.
func (a *App) Session() SessionInfo {
	a.mu.Lock()
	info := SessionInfo{
		Active:    a.running,
		ID:        a.sessionID,
		StartedAt: a.startedAt,
	}
	a.mu.Unlock()

	info.Stats = a.pipeline.Stats()
	info.Consumers = a.hub.Consumers()
	info.Dropped = a.hub.Dropped()
	return info
}

// LastEvent returns the most recent lifecycle or gesture event of the
// current session.
func (a *App) LastEvent() (events.CVEvent, bool) {
	ev := a.last.Load()
	if ev == nil {
		return events.CVEvent{}, false
	}
	return *ev, true
}

// Hub returns the event hub.
func (a *App) Hub() *events.Hub {
	return a.hub
}

// Pipeline returns the perception pipeline.
func (a *App) Pipeline() *Pipeline {
	return a.pipeline
}

// Preview returns the camera used for preview rendering.
func (a *App) Preview() capture.Camera {
	return a.source.PreviewHandle()
}

// Store returns the analytics store, which may be nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Sounds returns the sound pack manager, which may be nil.
func (a *App) Sounds() *audio.Manager {
	return a.sounds
}

// Tuning returns the perception tuning in use.
func (a *App) Tuning() config.Tuning {
	return a.tuning
}

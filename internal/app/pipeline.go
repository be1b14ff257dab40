package app

import (
	"cmp"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/playsight/internal/board"
	"github.com/ayusman/playsight/internal/config"
	"github.com/ayusman/playsight/internal/detector"
	"github.com/ayusman/playsight/internal/events"
	"github.com/ayusman/playsight/internal/geometry"
	"github.com/ayusman/playsight/internal/gesture"
	"github.com/ayusman/playsight/internal/smoothing"
	"github.com/ayusman/playsight/internal/tracking"
)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Tuning config.Tuning
	Hub    *events.Hub
	Logger *zap.SugaredLogger

	// NewID mints tracked entity ids. Defaults to random UUIDs.
	NewID func() string
}

// PipelineStats counts what the pipeline has done since it was created.
type PipelineStats struct {
	Processed uint64 `json:"processed"`
	Throttled uint64 `json:"throttled"`
	Dropped   uint64 `json:"dropped"`
	Published uint64 `json:"published"`
}

// Pipeline turns raw per-frame observations into events. All tracked state
// lives here and is only touched by the goroutine calling Process; Reset
// must not run concurrently with it.
type Pipeline struct {
	hub      *events.Hub
	logger   *zap.SugaredLogger
	interval time.Duration

	hands      *tracking.Tracker
	rects      *tracking.Tracker
	classifier *gesture.Classifier
	counts     *smoothing.CountSmoother
	gestures   *smoothing.GestureFilter
	machine    board.MachineConfig

	lastFrame time.Time
	lastCount map[string]int
	boards    map[string]*board.Machine

	// cells holds the last number written per cell of cellBoard.
	cells     map[board.Position]int
	cellBoard string
	cellGrid  int

	gridSize atomic.Int64

	processed atomic.Uint64
	throttled atomic.Uint64
	dropped   atomic.Uint64
	published atomic.Uint64
}

// NewPipeline creates a Pipeline publishing to config.Hub.
func NewPipeline(config PipelineConfig) *Pipeline {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	logger := config.Logger.Named("pipeline")
	tun := config.Tuning

	handCfg := tun.HandTracker()
	handCfg.Logger = logger
	handCfg.NewID = config.NewID
	rectCfg := tun.BoardTracker()
	rectCfg.Logger = logger
	rectCfg.NewID = config.NewID

	sm := tun.SmoothingConfig()

	p := &Pipeline{
		hub:        config.Hub,
		logger:     logger,
		interval:   tun.FrameInterval(),
		hands:      tracking.New(handCfg),
		rects:      tracking.New(rectCfg),
		classifier: gesture.NewClassifier(tun.Classifier()),
		counts:     smoothing.NewCountSmoother(sm.CountWindow),
		gestures:   smoothing.NewGestureFilter(sm, smoothing.RPSTransitions(sm.OverrideThreshold)),
		machine:    tun.Machine(),
		lastCount:  make(map[string]int),
		boards:     make(map[string]*board.Machine),
		cells:      make(map[board.Position]int),
	}
	p.gridSize.Store(board.GridLarge)
	return p
}

// SetGridSize selects the board grid size used for cell mapping. It may be
// called from any goroutine.
func (p *Pipeline) SetGridSize(n int) bool {
	if !board.ValidGridSize(n) {
		return false
	}
	p.gridSize.Store(int64(n))
	return true
}

// GridSize returns the current grid size.
func (p *Pipeline) GridSize() int {
	return int(p.gridSize.Load())
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Processed: p.processed.Load(),
		Throttled: p.throttled.Load(),
		Dropped:   p.dropped.Load(),
		Published: p.published.Load(),
	}
}

// Process runs one frame through the pipeline. Frames closer than the
// frame interval to the previous processed frame are dropped; it reports
// whether the frame was processed.
func (p *Pipeline) Process(obs detector.Observations) bool {
	ts := obs.Timestamp
	if !p.lastFrame.IsZero() {
		if d := ts.Sub(p.lastFrame); d >= 0 && d < p.minGap() {
			p.throttled.Add(1)
			return false
		}
	}
	p.lastFrame = ts
	p.processed.Add(1)

	clean, dropped := obs.Sanitized()
	if dropped > 0 {
		p.dropped.Add(uint64(dropped))
		p.logger.Debugw("dropped invalid observations", "count", dropped)
	}

	p.processHands(clean.Hands, ts)
	p.processBoards(clean.Rectangles, ts)
	p.processGlyphs(clean.Glyphs, ts)
	return true
}

// minGap is the frame interval less a quarter allowed for capture jitter.
func (p *Pipeline) minGap() time.Duration {
	return p.interval - p.interval/4
}

// Reset discards every tracked entity and smoothing history.
func (p *Pipeline) Reset() {
	p.hands.Reset()
	p.rects.Reset()
	p.counts.Reset()
	p.gestures.Reset()
	clear(p.lastCount)
	clear(p.boards)
	clear(p.cells)
	p.cellBoard = ""
	p.cellGrid = 0
	p.lastFrame = time.Time{}
}

// Tracked returns the number of tracked hands and boards.
func (p *Pipeline) Tracked() (hands, boards int) {
	return p.hands.Len(), p.rects.Len()
}

func (p *Pipeline) publish(ev events.CVEvent) {
	if p.hub == nil {
		return
	}
	p.published.Add(1)
	p.hub.Publish(ev)
}

func (p *Pipeline) processHands(hands []detector.HandObservation, ts time.Time) {
	centers := make([]geometry.Point, len(hands))
	for i := range hands {
		centers[i] = hands[i].Center()
	}
	res := p.hands.Update(centers, ts)

	for _, id := range res.Lost {
		p.counts.Forget(id)
		p.gestures.Forget(id)
		delete(p.lastCount, id)
		p.logger.Infow("hand lost", "id", id)
		p.publish(events.New(events.HandLost, id, 1, ts))
	}

	detected := make(map[string]bool, len(res.Detected))
	for _, id := range res.Detected {
		detected[id] = true
	}

	for i := range hands {
		h := &hands[i]
		id := res.Assignments[i]
		if id == "" {
			continue
		}
		h.ID = id
		center := centers[i]

		result := p.classifier.Classify(h)

		if detected[id] {
			p.logger.Infow("hand detected", "id", id, "chirality", result.Fingers.Chirality)
			p.publish(events.New(events.HandDetected, id, h.Confidence, ts).
				At(center).
				With("chirality", string(result.Fingers.Chirality)))
		}

		count := p.counts.Update(id, result.Fingers.Count)
		if prev, ok := p.lastCount[id]; !ok || prev != count {
			p.lastCount[id] = count
			p.publish(events.New(events.FingerCountDetected, id, result.Fingers.Confidence, ts).
				At(center).
				With("count", count).
				With("fingers", fingerNames(result.Fingers.Raised)).
				With("chirality", string(result.Fingers.Chirality)))
		}

		d := p.gestures.Observe(id, smoothing.Sample{
			Label:      string(result.Pose),
			Confidence: result.Confidence,
			Time:       ts,
		})
		if d.Changed && d.Label != string(gesture.PoseUnknown) {
			p.logger.Debugw("gesture changed", "id", id, "gesture", d.Label, "score", d.Score)
			p.publish(events.New(events.GestureDetected, id, d.Score, ts).
				At(center).
				With("gesture", d.Label).
				With("openness", result.Openness))
		}
	}
}

func fingerNames(s gesture.FingerSet) []string {
	fingers := s.List()
	names := make([]string, len(fingers))
	for i, f := range fingers {
		names[i] = f.String()
	}
	return names
}

func (p *Pipeline) processBoards(rects []detector.RectangleObservation, ts time.Time) {
	centers := make([]geometry.Point, len(rects))
	for i := range rects {
		centers[i] = rects[i].Center()
	}
	res := p.rects.Update(centers, ts)

	for i := range rects {
		id := res.Assignments[i]
		if id == "" {
			continue
		}
		m, ok := p.boards[id]
		if !ok {
			m = board.NewMachine(p.machine)
			p.boards[id] = m
		}
		p.boardTransition(id, m, m.Observe(board.NewBoardDetection(&rects[i], ts)), ts)
	}

	for _, id := range res.Missed {
		if m, ok := p.boards[id]; ok {
			p.boardTransition(id, m, m.Miss(), ts)
		}
	}

	for _, id := range res.Lost {
		if m, ok := p.boards[id]; ok {
			p.boardTransition(id, m, m.Lose(), ts)
			delete(p.boards, id)
		}
	}
}

func (p *Pipeline) boardTransition(id string, m *board.Machine, tr board.Transition, ts time.Time) {
	if tr.Changed() {
		p.logger.Debugw("board state", "id", id, "from", tr.From, "to", tr.To)
	}

	last := m.Last()
	switch tr.Signal {
	case board.SignalDetected:
		p.logger.Infow("board confirmed", "id", id, "confidence", last.Confidence)
		p.publish(events.New(events.SudokuGridDetected, id, last.Confidence, ts).
			At(geometry.Centroid(last.Corners[:]...)).
			With("corners", last.Corners).
			With("gridSize", p.GridSize()))
	case board.SignalLost:
		p.logger.Infow("board lost", "id", id)
		if p.cellBoard == id {
			clear(p.cells)
			p.cellBoard = ""
		}
		p.publish(events.New(events.SudokuGridLost, id, last.Confidence, ts))
	}
}

// confirmedBoard returns the confirmed board with the highest last
// confidence, ties broken by id.
func (p *Pipeline) confirmedBoard() (string, *board.Machine) {
	var bestID string
	var best *board.Machine
	for id, m := range p.boards {
		if m.State() != board.Confirmed {
			continue
		}
		if best == nil {
			bestID, best = id, m
			continue
		}
		c := cmp.Compare(m.Last().Confidence, best.Last().Confidence)
		if c > 0 || (c == 0 && id < bestID) {
			bestID, best = id, m
		}
	}
	return bestID, best
}

func (p *Pipeline) processGlyphs(glyphs []detector.GlyphObservation, ts time.Time) {
	if len(glyphs) == 0 {
		return
	}
	id, m := p.confirmedBoard()
	if m == nil {
		return
	}
	transform := m.Last().Transform
	if transform == nil {
		return
	}

	gridSize := p.GridSize()
	if id != p.cellBoard || gridSize != p.cellGrid {
		clear(p.cells)
		p.cellBoard = id
		p.cellGrid = gridSize
	}

	mapper, err := board.NewCellMapper(gridSize, transform)
	if err != nil {
		p.logger.Debugw("cannot map cells", "id", id, "error", err)
		return
	}

	for i := range glyphs {
		tile, ok := mapper.Map(&glyphs[i], ts)
		if !ok || tile.Number == nil {
			continue
		}
		n := *tile.Number
		if prev, ok := p.cells[tile.Position]; ok && prev == n {
			continue
		}
		p.cells[tile.Position] = n
		p.publish(events.New(events.SudokuCellWritten, id, tile.Confidence, ts).
			At(tile.BoundingBox.Center()).
			With("row", tile.Position.Row).
			With("col", tile.Position.Col).
			With("number", n).
			With("gridSize", gridSize))
	}
}

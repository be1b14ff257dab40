package app

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ayusman/playsight/internal/config"
	"github.com/ayusman/playsight/internal/detector"
	"github.com/ayusman/playsight/internal/events"
	"github.com/ayusman/playsight/internal/geometry"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type pipelineHarness struct {
	t   *testing.T
	p   *Pipeline
	sub *events.Subscription
	now time.Time
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	logger := zaptest.NewLogger(t).Sugar()
	hub := events.NewHub(events.HubConfig{BufferSize: 256, Logger: logger})
	p := NewPipeline(PipelineConfig{
		Tuning: config.Default(),
		Hub:    hub,
		Logger: logger,
		NewID:  sequentialIDs(),
	})
	return &pipelineHarness{
		t:   t,
		p:   p,
		sub: hub.Subscribe("test"),
		now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// frame processes obs 40ms after the previous frame and returns the events
// it published.
func (h *pipelineHarness) frame(obs detector.Observations) []events.CVEvent {
	h.t.Helper()
	h.now = h.now.Add(40 * time.Millisecond)
	obs.Timestamp = h.now
	require.True(h.t, h.p.Process(obs), "frame should not be throttled")
	return h.drain()
}

func (h *pipelineHarness) hands(hands ...detector.HandObservation) []events.CVEvent {
	h.t.Helper()
	return h.frame(detector.Observations{Hands: hands})
}

func (h *pipelineHarness) drain() []events.CVEvent {
	var out []events.CVEvent
	for {
		select {
		case ev := <-h.sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kindsOf(evs []events.CVEvent) []events.Kind {
	kinds := make([]events.Kind, len(evs))
	for i, ev := range evs {
		kinds[i] = ev.Kind
	}
	return kinds
}

func find(evs []events.CVEvent, kind events.Kind) (events.CVEvent, bool) {
	for _, ev := range evs {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return events.CVEvent{}, false
}

func TestPipeline_HandLifecycle(t *testing.T) {
	h := newPipelineHarness(t)
	fist := detector.Hand(detector.FistLandmarks(), 0.9)

	evs := h.hands(fist)
	require.Equal(t, []events.Kind{
		events.HandDetected,
		events.FingerCountDetected,
		events.GestureDetected,
	}, kindsOf(evs))

	detected := evs[0]
	assert.Equal(t, "id-1", detected.EntityID)
	assert.InDelta(t, 0.9, detected.Confidence, 1e-9)
	_, hasPos := detected.Position()
	assert.True(t, hasPos)

	count, _ := evs[1].Meta("count")
	assert.Equal(t, 0, count)
	gesture, _ := evs[2].Meta("gesture")
	assert.Equal(t, "rock", gesture)

	for range 4 {
		assert.Empty(t, h.hands(fist), "a steady hand publishes nothing new")
	}

	for i := range 4 {
		assert.Empty(t, h.frame(detector.Observations{}), "miss %d must not lose the hand", i+1)
	}
	evs = h.frame(detector.Observations{})
	require.Equal(t, []events.Kind{events.HandLost}, kindsOf(evs))
	assert.Equal(t, "id-1", evs[0].EntityID)

	assert.Empty(t, h.frame(detector.Observations{}), "lost is published once")

	hands, _ := h.p.Tracked()
	assert.Zero(t, hands)
}

func TestPipeline_TwoHandsKeepIDs(t *testing.T) {
	h := newPipelineHarness(t)
	left := detector.Hand(detector.FistLandmarks().Translate(-0.3, 0), 0.9)
	right := detector.Hand(detector.OpenPalmLandmarks().Translate(0.2, 0), 0.9)

	evs := h.hands(left, right)
	var ids []string
	for _, ev := range evs {
		if ev.Kind == events.HandDetected {
			ids = append(ids, ev.EntityID)
		}
	}
	require.Equal(t, []string{"id-1", "id-2"}, ids)

	for range 10 {
		for _, ev := range h.hands(right, left) {
			assert.NotEqual(t, events.HandDetected, ev.Kind)
			assert.NotEqual(t, events.HandLost, ev.Kind)
		}
	}
}

func TestPipeline_FingerCountIsSmoothed(t *testing.T) {
	h := newPipelineHarness(t)
	palm := detector.Hand(detector.OpenPalmLandmarks(), 0.9)
	fist := detector.Hand(detector.FistLandmarks(), 0.9)

	evs := h.hands(palm)
	ev, ok := find(evs, events.FingerCountDetected)
	require.True(t, ok)
	count, _ := ev.Meta("count")
	assert.Equal(t, 5, count)

	for range 4 {
		h.hands(palm)
	}

	// Mode over the last five counts flips on the third fist.
	for i := range 2 {
		_, ok := find(h.hands(fist), events.FingerCountDetected)
		assert.False(t, ok, "fist %d is outvoted", i+1)
	}
	ev, ok = find(h.hands(fist), events.FingerCountDetected)
	require.True(t, ok)
	count, _ = ev.Meta("count")
	assert.Equal(t, 0, count)
}

func TestPipeline_GestureChangeIsSmoothed(t *testing.T) {
	h := newPipelineHarness(t)
	palm := detector.Hand(detector.OpenPalmLandmarks(), 0.9)
	fist := detector.Hand(detector.FistLandmarks(), 0.9)

	ev, ok := find(h.hands(palm), events.GestureDetected)
	require.True(t, ok)
	g, _ := ev.Meta("gesture")
	assert.Equal(t, "paper", g)
	for range 4 {
		h.hands(palm)
	}

	_, ok = find(h.hands(fist), events.GestureDetected)
	assert.False(t, ok, "a single frame does not flip the gesture")

	var changed bool
	for range 8 {
		if ev, ok := find(h.hands(fist), events.GestureDetected); ok {
			g, _ := ev.Meta("gesture")
			assert.Equal(t, "rock", g)
			changed = true
			break
		}
	}
	assert.True(t, changed)
}

func TestPipeline_Throttle(t *testing.T) {
	h := newPipelineHarness(t)
	fist := detector.Hand(detector.FistLandmarks(), 0.9)

	h.hands(fist)
	assert.False(t, h.p.Process(detector.Observations{
		Timestamp: h.now.Add(5 * time.Millisecond),
		Hands:     []detector.HandObservation{fist},
	}))
	assert.True(t, h.p.Process(detector.Observations{
		Timestamp: h.now.Add(33 * time.Millisecond),
	}))

	stats := h.p.Stats()
	assert.Equal(t, uint64(2), stats.Processed)
	assert.Equal(t, uint64(1), stats.Throttled)
}

func TestPipeline_InvalidObservationsDropped(t *testing.T) {
	h := newPipelineHarness(t)

	bad := detector.Hand(detector.FistLandmarks(), 0.9)
	bad.Landmarks[detector.IndexTip] = geometry.Pt(1.5, 0.5)
	nan := detector.Hand(detector.OpenPalmLandmarks(), 2)

	assert.Empty(t, h.hands(bad, nan))
	assert.Equal(t, uint64(2), h.p.Stats().Dropped)
}

var testBoardCorners = [4]geometry.Point{
	{X: 0.2, Y: 0.2}, {X: 0.8, Y: 0.2}, {X: 0.8, Y: 0.8}, {X: 0.2, Y: 0.8},
}

func boardFrame(conf float64, glyphs ...detector.GlyphObservation) detector.Observations {
	return detector.Observations{
		Rectangles: []detector.RectangleObservation{{Corners: testBoardCorners, Confidence: conf}},
		Glyphs:     glyphs,
	}
}

// glyphAt returns a digit glyph centered on cell (row, col) of the 4x4 test
// board.
func glyphAt(value string, row, col int) detector.GlyphObservation {
	c := geometry.Pt(
		0.2+0.6*(float64(col)+0.5)/4,
		0.2+0.6*(float64(row)+0.5)/4,
	)
	return detector.GlyphObservation{
		Value:       value,
		BoundingBox: geometry.RectAround(c, 0.04, 0.04),
		Confidence:  0.8,
	}
}

func TestPipeline_BoardConfirmationAndCells(t *testing.T) {
	h := newPipelineHarness(t)
	require.True(t, h.p.SetGridSize(4))

	for i := range 9 {
		assert.Empty(t, h.frame(boardFrame(0.6)), "frame %d is before confirmation", i+1)
	}
	evs := h.frame(boardFrame(0.6))
	require.Equal(t, []events.Kind{events.SudokuGridDetected}, kindsOf(evs))
	assert.Equal(t, "id-1", evs[0].EntityID)
	gs, _ := evs[0].Meta("gridSize")
	assert.Equal(t, 4, gs)

	evs = h.frame(boardFrame(0.6, glyphAt("2", 1, 2)))
	require.Equal(t, []events.Kind{events.SudokuCellWritten}, kindsOf(evs))
	row, _ := evs[0].Meta("row")
	col, _ := evs[0].Meta("col")
	num, _ := evs[0].Meta("number")
	assert.Equal(t, []any{1, 2, 2}, []any{row, col, num})

	assert.Empty(t, h.frame(boardFrame(0.6, glyphAt("2", 1, 2))), "unchanged cell is not re-published")
	assert.Empty(t, h.frame(boardFrame(0.6, glyphAt("5", 1, 2))), "5 does not fit a 4x4 grid")
	assert.Empty(t, h.frame(boardFrame(0.6, glyphAt("9", 0, 0))), "digits beyond the grid are ignored")

	evs = h.frame(boardFrame(0.6, glyphAt("3", 1, 2)))
	require.Len(t, evs, 1)
	num, _ = evs[0].Meta("number")
	assert.Equal(t, 3, num)

	// A confirmed board survives a few missed frames.
	for i := range 4 {
		assert.Empty(t, h.frame(detector.Observations{}), "miss %d", i+1)
	}
	evs = h.frame(detector.Observations{})
	require.Equal(t, []events.Kind{events.SudokuGridLost}, kindsOf(evs))
	assert.Empty(t, h.frame(detector.Observations{}))
}

func TestPipeline_BoardSingleMissKeepsConfirmation(t *testing.T) {
	h := newPipelineHarness(t)
	for range 10 {
		h.frame(boardFrame(0.6))
	}
	assert.Empty(t, h.frame(detector.Observations{}))
	assert.Empty(t, h.frame(boardFrame(0.6)), "no duplicate detected event")
}

func TestPipeline_GlyphsIgnoredWithoutConfirmedBoard(t *testing.T) {
	h := newPipelineHarness(t)
	h.p.SetGridSize(4)
	assert.Empty(t, h.frame(boardFrame(0.6, glyphAt("1", 0, 0))))
	assert.Empty(t, h.frame(detector.Observations{Glyphs: []detector.GlyphObservation{glyphAt("1", 0, 0)}}))
}

func TestPipeline_SetGridSize(t *testing.T) {
	p := NewPipeline(PipelineConfig{Tuning: config.Default()})
	assert.Equal(t, 9, p.GridSize())
	assert.False(t, p.SetGridSize(5))
	assert.Equal(t, 9, p.GridSize())
	assert.True(t, p.SetGridSize(4))
	assert.Equal(t, 4, p.GridSize())
}

func TestPipeline_Reset(t *testing.T) {
	h := newPipelineHarness(t)
	h.frame(detector.Observations{
		Hands:      []detector.HandObservation{detector.Hand(detector.FistLandmarks(), 0.9)},
		Rectangles: []detector.RectangleObservation{{Corners: testBoardCorners, Confidence: 0.6}},
	})
	hands, boards := h.p.Tracked()
	require.Equal(t, 1, hands)
	require.Equal(t, 1, boards)

	h.p.Reset()
	hands, boards = h.p.Tracked()
	assert.Zero(t, hands)
	assert.Zero(t, boards)

	// The same hand is new again after a reset.
	_, ok := find(h.hands(detector.Hand(detector.FistLandmarks(), 0.9)), events.HandDetected)
	assert.True(t, ok)
}

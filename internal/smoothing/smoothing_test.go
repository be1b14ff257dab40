package smoothing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestWindow_WeightedVote(t *testing.T) {
	w := NewWindow(10, time.Second)
	for i := 0; i < 10; i++ {
		label := "A"
		if i%3 == 1 {
			label = "B" // frames 1, 4, 7
		}
		w.Add(Sample{Label: label, Confidence: 0.9, Time: at(i * 33)})
	}

	v, ok := w.Vote()
	require.True(t, ok)
	assert.Equal(t, "A", v.Label)
	assert.InDelta(t, 0.7, v.Score, 1e-9)
	assert.Equal(t, 10, v.Samples)
}

func TestWindow_ConfidenceOutweighsCount(t *testing.T) {
	w := NewWindow(5, 0)
	w.Add(Sample{Label: "rock", Confidence: 0.2, Time: at(0)})
	w.Add(Sample{Label: "rock", Confidence: 0.2, Time: at(10)})
	w.Add(Sample{Label: "paper", Confidence: 0.9, Time: at(20)})

	v, ok := w.Vote()
	require.True(t, ok)
	assert.Equal(t, "paper", v.Label)
	assert.InDelta(t, 0.9/1.3, v.Score, 1e-9)
}

func TestWindow_TieGoesToMostRecent(t *testing.T) {
	w := NewWindow(4, 0)
	w.Add(Sample{Label: "a", Confidence: 0.5, Time: at(0)})
	w.Add(Sample{Label: "b", Confidence: 0.5, Time: at(1)})
	v, _ := w.Vote()
	assert.Equal(t, "b", v.Label)

	w.Add(Sample{Label: "a", Confidence: 0.5, Time: at(2)})
	w.Add(Sample{Label: "b", Confidence: 0.5, Time: at(3)})
	v, _ = w.Vote()
	assert.Equal(t, "b", v.Label)
	assert.InDelta(t, 0.5, v.Score, 1e-9)
}

func TestWindow_Eviction(t *testing.T) {
	t.Run("capacity", func(t *testing.T) {
		w := NewWindow(3, 0)
		for i := 0; i < 5; i++ {
			w.Add(Sample{Label: "x", Confidence: 1, Time: at(i)})
		}
		assert.Equal(t, 3, w.Len())
	})

	t.Run("age", func(t *testing.T) {
		w := NewWindow(10, 500*time.Millisecond)
		w.Add(Sample{Label: "old", Confidence: 1, Time: at(0)})
		w.Add(Sample{Label: "old", Confidence: 1, Time: at(100)})
		w.Add(Sample{Label: "new", Confidence: 0.1, Time: at(700)})

		assert.Equal(t, 1, w.Len())
		v, ok := w.Vote()
		require.True(t, ok)
		assert.Equal(t, "new", v.Label)
		assert.InDelta(t, 1.0, v.Score, 1e-9)
	})

	t.Run("prune", func(t *testing.T) {
		w := NewWindow(10, 500*time.Millisecond)
		w.Add(Sample{Label: "x", Confidence: 1, Time: at(0)})
		w.Prune(at(501))
		_, ok := w.Vote()
		assert.False(t, ok)
	})
}

func TestWindow_EmptyAndZeroConfidence(t *testing.T) {
	w := NewWindow(3, 0)
	_, ok := w.Vote()
	assert.False(t, ok)

	w.Add(Sample{Label: "x", Confidence: 0, Time: at(0)})
	_, ok = w.Vote()
	assert.False(t, ok)

	w.Reset()
	assert.Equal(t, 0, w.Len())
}

func TestSmoother_PerEntity(t *testing.T) {
	s := NewSmoother(DefaultConfig())

	s.Update("h1", Sample{Label: "rock", Confidence: 0.9, Time: at(0)})
	v, _ := s.Update("h2", Sample{Label: "paper", Confidence: 0.9, Time: at(0)})
	assert.Equal(t, "paper", v.Label)

	v, _ = s.Update("h1", Sample{Label: "rock", Confidence: 0.9, Time: at(33)})
	assert.Equal(t, "rock", v.Label)
	assert.Equal(t, 2, s.Len())

	s.Forget("h1")
	assert.Equal(t, 1, s.Len())
	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestTransitionValidator(t *testing.T) {
	v := RPSTransitions(0.85)

	assert.True(t, v.Adjacent("rock", "paper"))
	assert.True(t, v.Adjacent("paper", "rock"))
	assert.True(t, v.Adjacent("scissors", "rock"))
	assert.True(t, v.Adjacent("pointing", "pointing"))
	assert.False(t, v.Adjacent("paper", "pointing"))
	assert.False(t, v.Adjacent("rock", "unknown"))

	assert.True(t, v.Allow("", "unknown", 0.1), "first label always accepted")
	assert.True(t, v.Allow("rock", "paper", 0.1))
	assert.False(t, v.Allow("paper", "pointing", 0.84))
	assert.True(t, v.Allow("paper", "pointing", 0.85))
	assert.InDelta(t, 0.85, v.Override(), 1e-9)
}

func feed(f *GestureFilter, id, label string, n int, start int) (Decision, int) {
	var d Decision
	changedAt := -1
	for i := 0; i < n; i++ {
		d = f.Observe(id, Sample{Label: label, Confidence: 1, Time: at((start + i) * 33)})
		if d.Changed && changedAt < 0 {
			changedAt = i + 1
		}
	}
	return d, changedAt
}

func TestGestureFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAge = time.Hour

	t.Run("single frame glitch does not flicker", func(t *testing.T) {
		f := NewGestureFilter(cfg, RPSTransitions(cfg.OverrideThreshold))
		d, changedAt := feed(f, "h", "rock", 10, 0)
		assert.Equal(t, "rock", d.Label)
		assert.Equal(t, 1, changedAt)

		d = f.Observe("h", Sample{Label: "scissors", Confidence: 1, Time: at(400)})
		assert.Equal(t, "rock", d.Label)
		assert.False(t, d.Changed)
	})

	t.Run("adjacent change follows the vote", func(t *testing.T) {
		f := NewGestureFilter(cfg, RPSTransitions(cfg.OverrideThreshold))
		feed(f, "h", "paper", 10, 0)
		d, changedAt := feed(f, "h", "scissors", 10, 10)
		assert.Equal(t, "scissors", d.Label)
		assert.Equal(t, 5, changedAt, "tie at five goes to the newer label")
	})

	t.Run("non-adjacent change needs override score", func(t *testing.T) {
		f := NewGestureFilter(cfg, RPSTransitions(cfg.OverrideThreshold))
		feed(f, "h", "paper", 10, 0)
		d, changedAt := feed(f, "h", "pointing", 10, 10)
		assert.Equal(t, "pointing", d.Label)
		assert.Equal(t, 9, changedAt)
	})

	t.Run("stable and forget", func(t *testing.T) {
		f := NewGestureFilter(cfg, nil)
		_, ok := f.Stable("h")
		assert.False(t, ok)

		feed(f, "h", "rock", 1, 0)
		label, ok := f.Stable("h")
		assert.True(t, ok)
		assert.Equal(t, "rock", label)

		f.Forget("h")
		_, ok = f.Stable("h")
		assert.False(t, ok)

		feed(f, "h", "rock", 1, 0)
		f.Reset()
		_, ok = f.Stable("h")
		assert.False(t, ok)
	})
}

func TestCountSmoother(t *testing.T) {
	c := NewCountSmoother(5)

	assert.Equal(t, 2, c.Update("h", 2))
	assert.Equal(t, 2, c.Update("h", 2))
	assert.Equal(t, 2, c.Update("h", 5), "single outlier is suppressed")
	assert.Equal(t, 2, c.Update("h", 2))
	assert.Equal(t, 2, c.Update("h", 3))

	// History is now 2,2,5,2,3; three 3s take over once the 2s age out.
	c.Update("h", 3)
	c.Update("h", 3)
	assert.Equal(t, 3, c.Update("h", 3))

	t.Run("tie goes to the recent count", func(t *testing.T) {
		c := NewCountSmoother(4)
		c.Update("x", 1)
		c.Update("x", 1)
		c.Update("x", 4)
		assert.Equal(t, 4, c.Update("x", 4))
	})

	t.Run("entities are independent", func(t *testing.T) {
		c := NewCountSmoother(3)
		c.Update("a", 1)
		assert.Equal(t, 5, c.Update("b", 5))
		c.Forget("b")
		assert.Equal(t, 0, c.Update("b", 0))
		c.Reset()
		assert.Equal(t, 4, c.Update("a", 4))
	})
}

// Package smoothing de-noises per-frame labels with time-windowed,
// confidence-weighted voting and a transition validity filter.
package smoothing

import (
	"time"
)

// Sample is one labelled measurement of a tracked entity.
type Sample struct {
	Label      string
	Confidence float64
	Time       time.Time
}

// Vote is the outcome of confidence-weighted voting over a window.
type Vote struct {
	Label string
	// Score is the winning label's confidence sum divided by the sum over
	// all samples in the window.
	Score float64
	// Samples is the number of samples that took part.
	Samples int
}

// Window is a fixed-capacity rolling history of samples that also evicts
// samples older than MaxAge relative to the newest one.
type Window struct {
	capacity int
	maxAge   time.Duration
	samples  []Sample
}

// NewWindow creates a Window. A non-positive maxAge disables age eviction.
func NewWindow(capacity int, maxAge time.Duration) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		maxAge:   maxAge,
		samples:  make([]Sample, 0, capacity),
	}
}

// Add appends s and evicts samples beyond capacity or older than the
// window's max age.
func (w *Window) Add(s Sample) {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, s)
	w.Prune(s.Time)
}

// Prune drops samples older than the max age at now.
func (w *Window) Prune(now time.Time) {
	if w.maxAge <= 0 {
		return
	}
	cutoff := now.Add(-w.maxAge)
	i := 0
	for i < len(w.samples) && w.samples[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// Len returns the number of samples in the window.
func (w *Window) Len() int {
	return len(w.samples)
}

// Vote returns the label with the largest confidence sum. Ties go to the
// label sampled most recently. ok is false when the window is empty or
// carries no confidence at all.
func (w *Window) Vote() (v Vote, ok bool) {
	if len(w.samples) == 0 {
		return Vote{}, false
	}

	totals := make(map[string]float64)
	last := make(map[string]int)
	var sum float64
	for i, s := range w.samples {
		totals[s.Label] += s.Confidence
		last[s.Label] = i
		sum += s.Confidence
	}
	if sum <= 0 {
		return Vote{}, false
	}

	best := ""
	bestTotal := -1.0
	for label, total := range totals {
		switch {
		case total > bestTotal+tieEpsilon:
		case total > bestTotal-tieEpsilon && last[label] > last[best]:
		default:
			continue
		}
		best, bestTotal = label, total
	}

	return Vote{Label: best, Score: bestTotal / sum, Samples: len(w.samples)}, true
}

// tieEpsilon absorbs float rounding when comparing confidence sums.
const tieEpsilon = 1e-9

// Reset empties the window.
func (w *Window) Reset() {
	w.samples = w.samples[:0]
}

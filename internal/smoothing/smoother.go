package smoothing

import (
	"time"
)

// Config holds smoothing configuration.
type Config struct {
	// WindowSize is the number of samples kept per entity.
	WindowSize int

	// MaxAge evicts samples older than this relative to the newest sample.
	MaxAge time.Duration

	// CountWindow is the number of recent counts the mode is taken over.
	CountWindow int

	// OverrideThreshold is the vote score at which a label change outside
	// the transition graph is accepted anyway.
	OverrideThreshold float64
}

// DefaultConfig returns the default smoothing configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:        10,
		MaxAge:            500 * time.Millisecond,
		CountWindow:       5,
		OverrideThreshold: 0.85,
	}
}

// Smoother keeps one voting window per tracked entity.
// It is not safe for concurrent use.
type Smoother struct {
	config  Config
	windows map[string]*Window
}

// NewSmoother creates a Smoother.
func NewSmoother(config Config) *Smoother {
	return &Smoother{
		config:  config,
		windows: make(map[string]*Window),
	}
}

// Update records s for entity id and returns the current vote.
func (s *Smoother) Update(id string, sample Sample) (Vote, bool) {
	w, ok := s.windows[id]
	if !ok {
		w = NewWindow(s.config.WindowSize, s.config.MaxAge)
		s.windows[id] = w
	}
	w.Add(sample)
	return w.Vote()
}

// Forget drops the history of entity id.
func (s *Smoother) Forget(id string) {
	delete(s.windows, id)
}

// Reset drops all histories.
func (s *Smoother) Reset() {
	clear(s.windows)
}

// Len returns the number of entities with history.
func (s *Smoother) Len() int {
	return len(s.windows)
}

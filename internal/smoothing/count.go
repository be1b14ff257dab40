package smoothing

import (
	"gonum.org/v1/gonum/stat"
)

// recencyBias is added per position to sample weights so that among equally
// frequent counts the more recently seen one wins.
const recencyBias = 1e-3

// CountSmoother smooths categorical integer measurements (finger counts)
// with the statistical mode over the most recent samples of each entity.
type CountSmoother struct {
	size    int
	history map[string][]float64
	weights []float64
}

// NewCountSmoother creates a CountSmoother over the last size samples.
func NewCountSmoother(size int) *CountSmoother {
	if size < 1 {
		size = 1
	}
	weights := make([]float64, size)
	for i := range weights {
		weights[i] = 1 + float64(i)*recencyBias
	}
	return &CountSmoother{
		size:    size,
		history: make(map[string][]float64),
		weights: weights,
	}
}

// Update records count for entity id and returns the mode of its recent
// counts.
func (c *CountSmoother) Update(id string, count int) int {
	h := append(c.history[id], float64(count))
	if len(h) > c.size {
		h = h[len(h)-c.size:]
	}
	c.history[id] = h

	mode, _ := stat.Mode(h, c.weights[c.size-len(h):])
	return int(mode)
}

// Forget drops the history of entity id.
func (c *CountSmoother) Forget(id string) {
	delete(c.history, id)
}

// Reset drops all histories.
func (c *CountSmoother) Reset() {
	clear(c.history)
}

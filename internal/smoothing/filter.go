package smoothing

// Decision is the output of a GestureFilter for one sample.
type Decision struct {
	// Label is the stable label after filtering. Empty until the first
	// vote is accepted.
	Label string
	Score float64
	// Changed is set when Label differs from the previous stable label.
	Changed bool
}

// GestureFilter combines windowed voting with a transition validator and
// tracks the stable label of each entity.
type GestureFilter struct {
	smoother  *Smoother
	validator *TransitionValidator
	stable    map[string]Decision
}

// NewGestureFilter creates a GestureFilter. A nil validator accepts every
// transition.
func NewGestureFilter(config Config, validator *TransitionValidator) *GestureFilter {
	if validator == nil {
		validator = NewTransitionValidator(0)
	}
	return &GestureFilter{
		smoother:  NewSmoother(config),
		validator: validator,
		stable:    make(map[string]Decision),
	}
}

// Observe feeds one sample for entity id. A voted label replaces the stable
// one only when the validator accepts the change at the vote's score.
func (f *GestureFilter) Observe(id string, s Sample) Decision {
	prev := f.stable[id]

	vote, ok := f.smoother.Update(id, s)
	if !ok {
		return Decision{Label: prev.Label, Score: prev.Score}
	}

	if vote.Label == prev.Label {
		d := Decision{Label: vote.Label, Score: vote.Score}
		f.stable[id] = d
		return d
	}

	if !f.validator.Allow(prev.Label, vote.Label, vote.Score) {
		return Decision{Label: prev.Label, Score: prev.Score}
	}

	d := Decision{Label: vote.Label, Score: vote.Score}
	f.stable[id] = d
	d.Changed = true
	return d
}

// Stable returns the current stable label of entity id.
func (f *GestureFilter) Stable(id string) (string, bool) {
	d, ok := f.stable[id]
	return d.Label, ok && d.Label != ""
}

// Forget drops everything known about entity id.
func (f *GestureFilter) Forget(id string) {
	f.smoother.Forget(id)
	delete(f.stable, id)
}

// Reset drops all entities.
func (f *GestureFilter) Reset() {
	f.smoother.Reset()
	clear(f.stable)
}

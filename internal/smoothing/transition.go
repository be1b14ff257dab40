package smoothing

// TransitionValidator accepts label changes along the edges of an undirected
// graph, and any other change only at or above an override threshold.
type TransitionValidator struct {
	adjacent map[string]map[string]bool
	override float64
}

// Edge is an undirected transition between two labels.
type Edge [2]string

// NewTransitionValidator creates a validator over edges.
func NewTransitionValidator(override float64, edges ...Edge) *TransitionValidator {
	v := &TransitionValidator{
		adjacent: make(map[string]map[string]bool),
		override: override,
	}
	for _, e := range edges {
		v.link(e[0], e[1])
		v.link(e[1], e[0])
	}
	return v
}

func (v *TransitionValidator) link(a, b string) {
	m, ok := v.adjacent[a]
	if !ok {
		m = make(map[string]bool)
		v.adjacent[a] = m
	}
	m[b] = true
}

// RPSTransitions is the transition graph of rock, paper, scissors and
// pointing. Rock, paper and scissors reach each other directly; pointing
// sits between scissors and rock. Unknown is adjacent to nothing.
func RPSTransitions(override float64) *TransitionValidator {
	return NewTransitionValidator(override,
		Edge{"rock", "paper"},
		Edge{"paper", "scissors"},
		Edge{"scissors", "rock"},
		Edge{"scissors", "pointing"},
		Edge{"pointing", "rock"},
	)
}

// Adjacent reports whether a and b are the same label or linked by an edge.
func (v *TransitionValidator) Adjacent(a, b string) bool {
	return a == b || v.adjacent[a][b]
}

// Allow reports whether a change from one label to another is accepted at
// the given confidence. The first label of an entity (from == "") is
// always accepted.
func (v *TransitionValidator) Allow(from, to string, confidence float64) bool {
	if from == "" || v.Adjacent(from, to) {
		return true
	}
	return confidence >= v.override
}

// Override returns the override threshold.
func (v *TransitionValidator) Override() float64 {
	return v.override
}

// Package board confirms candidate quadrilaterals as game boards and maps
// glyphs written on a confirmed board onto grid cells.
package board

// State is the confirmation state of one tracked quadrilateral.
type State int

const (
	Searching State = iota
	Detecting
	Stabilizing
	Confirmed
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case Detecting:
		return "detecting"
	case Stabilizing:
		return "stabilizing"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Signal is the lifecycle event a transition produces, if any.
type Signal int

const (
	SignalNone Signal = iota
	SignalDetected
	SignalLost
)

// Transition describes the effect of one input on a Machine.
type Transition struct {
	From   State
	To     State
	Signal Signal
}

// Changed reports whether the state moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// MachineConfig tunes the confirmation state machine.
type MachineConfig struct {
	// Threshold is the confidence a sample needs to qualify.
	Threshold float64

	// RequiredFrames is the number of consecutive qualifying samples needed
	// to confirm. It is also the stability reserve of a confirmed board.
	RequiredFrames int

	// Window is the number of recent confidences averaged for the
	// detecting to stabilizing gate.
	Window int

	// DropRatio is the fraction of Threshold below which a confirmed board
	// falls back to detecting.
	DropRatio float64

	// MissPenalty is subtracted from the stability reserve on each frame
	// without a sample while confirmed.
	MissPenalty int
}

// DefaultMachineConfig returns the default confirmation parameters.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		Threshold:      0.5,
		RequiredFrames: 10,
		Window:         5,
		DropRatio:      0.7,
		MissPenalty:    2,
	}
}

// Machine is the searching, detecting, stabilizing, confirmed state machine
// of one tracked quadrilateral. It is not safe for concurrent use.
type Machine struct {
	config    MachineConfig
	state     State
	recent    []float64
	counter   int
	stability int
	announced bool
	last      BoardDetection
}

// NewMachine creates a Machine in the Searching state.
func NewMachine(config MachineConfig) *Machine {
	def := DefaultMachineConfig()
	if config.RequiredFrames < 1 {
		config.RequiredFrames = def.RequiredFrames
	}
	if config.Window < 1 {
		config.Window = def.Window
	}
	if config.MissPenalty < 1 {
		config.MissPenalty = def.MissPenalty
	}
	if config.DropRatio <= 0 {
		config.DropRatio = def.DropRatio
	}
	return &Machine{config: config}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Announced reports whether a Detected signal has been emitted without a
// matching Lost since.
func (m *Machine) Announced() bool {
	return m.announced
}

// Last returns the most recent sample.
func (m *Machine) Last() BoardDetection {
	return m.last
}

// Observe feeds one supporting sample.
func (m *Machine) Observe(d BoardDetection) Transition {
	m.last = d
	conf := d.Confidence
	tr := Transition{From: m.state}

	m.recent = append(m.recent, conf)
	if len(m.recent) > m.config.Window {
		m.recent = m.recent[len(m.recent)-m.config.Window:]
	}

	qualifies := conf >= m.config.Threshold
	if qualifies {
		m.counter++
	} else {
		m.counter = 0
	}

	switch m.state {
	case Searching:
		if qualifies {
			m.state = Detecting
		}
	case Detecting:
		if m.average() > m.config.Threshold {
			m.state = Stabilizing
		}

	case Stabilizing:
		if !qualifies {
			m.state = Detecting
			m.counter = 0
		}
	case Confirmed:
		if conf < m.config.DropRatio*m.config.Threshold {
			m.state = Detecting
			m.counter = 0
			m.stability = 0
		} else if qualifies && m.stability < m.config.RequiredFrames {
			m.stability++
		}
	}

	if m.state == Stabilizing && m.counter >= m.config.RequiredFrames {
		m.state = Confirmed
		m.stability = m.config.RequiredFrames
		if !m.announced {
			m.announced = true
			tr.Signal = SignalDetected
		}
	}

	tr.To = m.state
	return tr
}

// Miss records a frame with no supporting sample. A confirmed board loses
// MissPenalty from its stability reserve and only returns to Searching when
// the reserve is exhausted. Detecting and stabilizing boards just reset
// their qualifying counter.
func (m *Machine) Miss() Transition {
	tr := Transition{From: m.state}

	switch m.state {
	case Confirmed:
		m.stability -= m.config.MissPenalty
		if m.stability <= 0 {
			tr.Signal = m.reset()
		}
	case Detecting, Stabilizing:
		m.counter = 0
	}

	tr.To = m.state
	return tr
}

// Lose returns the machine to Searching because the caller gave up on the
// board (no sample for longer than its timeout).
func (m *Machine) Lose() Transition {
	tr := Transition{From: m.state}
	tr.Signal = m.reset()
	tr.To = m.state
	return tr
}

func (m *Machine) reset() Signal {
	sig := SignalNone
	if m.announced {
		sig = SignalLost
	}
	m.state = Searching
	m.recent = m.recent[:0]
	m.counter = 0
	m.stability = 0
	m.announced = false
	return sig
}

func (m *Machine) average() float64 {
	if len(m.recent) == 0 {
		return 0
	}
	var sum float64
	for _, c := range m.recent {
		sum += c
	}
	return sum / float64(len(m.recent))
}

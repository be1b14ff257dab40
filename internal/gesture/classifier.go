package gesture

import (
	"math"

	"github.com/ayusman/playsight/internal/detector"
	"github.com/ayusman/playsight/internal/geometry"
)

// Openness weights and normalization ranges. Spread and extension are
// measured in hand sizes (wrist to middle MCP).
const (
	spreadWeight    = 0.3
	extensionWeight = 0.4
	raisedWeight    = 0.3

	spreadMin    = 0.3
	spreadMax    = 1.0
	extensionMin = 0.8
	extensionMax = 2.2

	// minHandSize below which a hand is considered degenerate.
	minHandSize = 1e-6

	// chiralityEpsilon is the thumb/index MCP x gap below which chirality
	// is undecided.
	chiralityEpsilon = 0.005
)

// Config tunes the classifier.
type Config struct {
	// AngleThreshold is the minimum angle in degrees at the proximal joint
	// for the lenient straightness check.
	AngleThreshold float64

	// ReachRatio is how much further than its metacarpal a finger tip must
	// be from the wrist for the lenient check.
	ReachRatio float64

	// Mirrored flips chirality for front-facing cameras that mirror the image.
	Mirrored bool
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		AngleThreshold: 140,
		ReachRatio:     1.2,
	}
}

// Classifier derives finger and pose information from hand observations.
// It is stateless and safe for concurrent use.
type Classifier struct {
	config Config
}

// NewClassifier creates a Classifier.
func NewClassifier(config Config) *Classifier {
	if config.AngleThreshold <= 0 {
		config.AngleThreshold = DefaultConfig().AngleThreshold
	}
	if config.ReachRatio <= 0 {
		config.ReachRatio = DefaultConfig().ReachRatio
	}
	return &Classifier{config: config}
}

// IsExtended reports whether finger f is extended. A finger counts as
// extended when its joints move monotonically away from the wrist, or when
// it is nearly straight at the proximal joint and reaches well past its
// metacarpal. Either test is sufficient; undercounting is worse than
// overcounting for the games downstream.
func (c *Classifier) IsExtended(l *detector.HandLandmarks, f Finger) bool {
	ch := f.chain()
	wrist := l[detector.Wrist]
	tip, distal, proximal, meta := l[ch[0]], l[ch[1]], l[ch[2]], l[ch[3]]

	dTip := geometry.Distance(tip, wrist)
	dDistal := geometry.Distance(distal, wrist)
	dProximal := geometry.Distance(proximal, wrist)
	dMeta := geometry.Distance(meta, wrist)

	if dTip > dDistal && dDistal > dProximal && dProximal > dMeta {
		return true
	}

	angle := geometry.AngleAt(proximal, tip, meta)
	return angle > c.config.AngleThreshold && dTip > c.config.ReachRatio*dMeta
}

// Raised returns the set of extended fingers.
func (c *Classifier) Raised(l *detector.HandLandmarks) FingerSet {
	var s FingerSet
	for _, f := range AllFingers {
		if c.IsExtended(l, f) {
			s = s.Add(f)
		}
	}
	return s
}

// Chirality infers handedness from the thumb MCP position relative to the
// index MCP. In an un-mirrored image of a palm facing the camera, a right
// hand has its thumb to the right of its index finger.
func (c *Classifier) Chirality(l *detector.HandLandmarks) detector.Chirality {
	dx := l[detector.ThumbMCP].X - l[detector.IndexMCP].X
	if math.Abs(dx) < chiralityEpsilon {
		return detector.ChiralityUnknown
	}
	ch := detector.ChiralityLeft
	if dx > 0 {
		ch = detector.ChiralityRight
	}
	if c.config.Mirrored {
		ch = ch.Flip()
	}
	return ch
}

// Fingers analyzes the fingers of one hand. When chirality cannot be
// inferred from the landmarks the recognizer's label is kept.
func (c *Classifier) Fingers(hand *detector.HandObservation) FingerDetectionResult {
	raised := c.Raised(&hand.Landmarks)
	ch := c.Chirality(&hand.Landmarks)
	if ch == detector.ChiralityUnknown {
		ch = hand.Chirality
	}
	return FingerDetectionResult{
		Count:      raised.Len(),
		Confidence: hand.Confidence,
		Raised:     raised,
		Chirality:  ch,
	}
}

// Openness scores how open the hand is, from 0 (closed fist) to 1 (flat,
// spread palm). It combines finger spread, tip extension from the palm
// center and the fraction of raised fingers, each measured relative to the
// hand size so the score does not depend on distance to the camera.
func Openness(l *detector.HandLandmarks, raised FingerSet) float64 {
	size := l.HandSize()
	if size < minHandSize {
		return 0
	}

	var tips [NumFingers]geometry.Point
	for i, f := range AllFingers {
		tips[i] = l[f.chain()[0]]
	}

	var spread float64
	for i := 0; i < NumFingers-1; i++ {
		spread += geometry.Distance(tips[i], tips[i+1])
	}
	spread /= float64(NumFingers-1) * size

	palm := geometry.Centroid(
		l[detector.Wrist],
		l[detector.IndexMCP],
		l[detector.MiddleMCP],
		l[detector.RingMCP],
		l[detector.PinkyMCP],
	)
	var extension float64
	for _, tip := range tips {
		extension += geometry.Distance(tip, palm)
	}
	extension /= float64(NumFingers) * size

	return spreadWeight*normalize(spread, spreadMin, spreadMax) +
		extensionWeight*normalize(extension, extensionMin, extensionMax) +
		raisedWeight*float64(raised.Len())/NumFingers
}

func normalize(v, lo, hi float64) float64 {
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

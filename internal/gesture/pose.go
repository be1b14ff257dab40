package gesture

import "github.com/ayusman/playsight/internal/detector"

// Pose is a discrete hand pose label.
type Pose string

const (
	PoseUnknown  Pose = "unknown"
	PoseRock     Pose = "rock"
	PosePaper    Pose = "paper"
	PoseScissors Pose = "scissors"
	PosePointing Pose = "pointing"
)

// closedOpenness is the openness below which a hand reads as closed.
const closedOpenness = 0.3

// PoseResult is the full classification of one hand.
type PoseResult struct {
	Pose       Pose                  `json:"pose"`
	Confidence float64               `json:"confidence"`
	Openness   float64               `json:"openness"`
	Fingers    FingerDetectionResult `json:"fingers"`
}

// Classify runs the finger analysis, openness score and pose inference on
// one hand observation.
func (c *Classifier) Classify(hand *detector.HandObservation) PoseResult {
	fingers := c.Fingers(hand)
	openness := Openness(&hand.Landmarks, fingers.Raised)
	pose, conf := InferPose(fingers.Raised, openness)
	return PoseResult{
		Pose:       pose,
		Confidence: conf,
		Openness:   openness,
		Fingers:    fingers,
	}
}

// InferPose maps a raised-finger set and openness onto a rock, paper,
// scissors or pointing pose with a confidence in [0,1].
func InferPose(raised FingerSet, openness float64) (Pose, float64) {
	count := raised.Len()
	index, middle := raised.Has(Index), raised.Has(Middle)
	ring, little := raised.Has(Ring), raised.Has(Little)
	thumb := raised.Has(Thumb)

	switch {
	case count == 0 && openness < closedOpenness:
		return PoseRock, 0.85 + 0.15*(closedOpenness-openness)/closedOpenness
	case count == 0:
		return PoseRock, 0.7
	case raised.Only(Thumb) && openness < closedOpenness:
		// A tucked thumb is often read as raised.
		return PoseRock, 0.75
	case index && middle && !ring && !little:
		if thumb {
			return PoseScissors, 0.8
		}
		return PoseScissors, 0.9
	case index && !middle && !ring && !little:
		if thumb {
			return PosePointing, 0.75
		}
		return PosePointing, 0.85
	case count >= 4:
		return PosePaper, 0.7 + 0.3*clamp01(openness)
	default:
		return PoseUnknown, 0.3
	}
}

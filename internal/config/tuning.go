// Package config loads the perception tuning parameters.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/ayusman/playsight/internal/board"
	"github.com/ayusman/playsight/internal/gesture"
	"github.com/ayusman/playsight/internal/smoothing"
	"github.com/ayusman/playsight/internal/tracking"
)

// ErrInvalid is returned for tuning values out of range.
var ErrInvalid = errors.New("invalid tuning")

// HandTuning configures hand tracking and classification.
type HandTuning struct {
	MatchThreshold float64 `json:"matchThreshold"`
	MaxMisses      int     `json:"maxMisses"`
	AngleThreshold float64 `json:"angleThreshold"`
	ReachRatio     float64 `json:"reachRatio"`
}

// BoardTuning configures board tracking and confirmation.
type BoardTuning struct {
	MatchThreshold float64 `json:"matchThreshold"`
	MaxMisses      int     `json:"maxMisses"`
	Threshold      float64 `json:"threshold"`
	RequiredFrames int     `json:"requiredFrames"`
	Window         int     `json:"window"`
	DropRatio      float64 `json:"dropRatio"`
	MissPenalty    int     `json:"missPenalty"`
}

// SmoothingTuning configures label and count smoothing.
type SmoothingTuning struct {
	WindowSize        int           `json:"windowSize"`
	MaxAge            time.Duration `json:"maxAge"`
	CountWindow       int           `json:"countWindow"`
	OverrideThreshold float64       `json:"overrideThreshold"`
}

// Tuning holds every perception parameter.
type Tuning struct {
	// FrameRate caps the number of frames processed per second.
	FrameRate int `json:"frameRate"`

	// Mirrored is set for front-facing cameras that mirror the image.
	Mirrored bool `json:"mirrored"`

	// Strict makes tracker invariant violations panic.
	Strict bool `json:"strict"`

	// EventBuffer is the per-subscriber event channel capacity.
	EventBuffer int `json:"eventBuffer"`

	Hand      HandTuning      `json:"hand"`
	Board     BoardTuning     `json:"board"`
	Smoothing SmoothingTuning `json:"smoothing"`
}

// Default returns the default tuning.
func Default() Tuning {
	hand := tracking.HandConfig()
	rect := tracking.RectangleConfig()
	cls := gesture.DefaultConfig()
	m := board.DefaultMachineConfig()
	sm := smoothing.DefaultConfig()

	return Tuning{
		FrameRate:   30,
		EventBuffer: 64,
		Hand: HandTuning{
			MatchThreshold: hand.MatchThreshold,
			MaxMisses:      hand.MaxMisses,
			AngleThreshold: cls.AngleThreshold,
			ReachRatio:     cls.ReachRatio,
		},
		Board: BoardTuning{
			MatchThreshold: rect.MatchThreshold,
			MaxMisses:      rect.MaxMisses,
			Threshold:      m.Threshold,
			RequiredFrames: m.RequiredFrames,
			Window:         m.Window,
			DropRatio:      m.DropRatio,
			MissPenalty:    m.MissPenalty,
		},
		Smoothing: SmoothingTuning{
			WindowSize:        sm.WindowSize,
			MaxAge:            sm.MaxAge,
			CountWindow:       sm.CountWindow,
			OverrideThreshold: sm.OverrideThreshold,
		},
	}
}

// Load reads a JSON tuning file and applies it on top of the defaults.
// An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Default()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return t, fmt.Errorf("parse tuning %s: %w", path, err)
	}

	if err := Decode(raw, &t); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	return t, nil
}

// Decode applies raw onto t. Durations may be given as strings ("500ms").
// Unknown keys are rejected.
func Decode(raw map[string]any, t *Tuning) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           t,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return err
	}
	return t.Validate()
}

// Validate checks that every value is in range.
func (t *Tuning) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(t.FrameRate > 0 && t.FrameRate <= 120, "frameRate %d", t.FrameRate)
	check(t.EventBuffer > 0, "eventBuffer %d", t.EventBuffer)
	check(t.Hand.MatchThreshold > 0 && t.Hand.MatchThreshold <= 1, "hand.matchThreshold %v", t.Hand.MatchThreshold)
	check(t.Hand.MaxMisses > 0, "hand.maxMisses %d", t.Hand.MaxMisses)
	check(t.Hand.AngleThreshold > 0 && t.Hand.AngleThreshold < 180, "hand.angleThreshold %v", t.Hand.AngleThreshold)
	check(t.Hand.ReachRatio > 0, "hand.reachRatio %v", t.Hand.ReachRatio)
	check(t.Board.MatchThreshold > 0 && t.Board.MatchThreshold <= 1, "board.matchThreshold %v", t.Board.MatchThreshold)
	check(t.Board.MaxMisses > 0, "board.maxMisses %d", t.Board.MaxMisses)
	check(t.Board.Threshold > 0 && t.Board.Threshold < 1, "board.threshold %v", t.Board.Threshold)
	check(t.Board.RequiredFrames > 0, "board.requiredFrames %d", t.Board.RequiredFrames)
	check(t.Board.Window > 0, "board.window %d", t.Board.Window)
	check(t.Board.DropRatio > 0 && t.Board.DropRatio <= 1, "board.dropRatio %v", t.Board.DropRatio)
	check(t.Board.MissPenalty > 0, "board.missPenalty %d", t.Board.MissPenalty)
	check(t.Smoothing.WindowSize > 0, "smoothing.windowSize %d", t.Smoothing.WindowSize)
	check(t.Smoothing.MaxAge >= 0, "smoothing.maxAge %v", t.Smoothing.MaxAge)
	check(t.Smoothing.CountWindow > 0, "smoothing.countWindow %d", t.Smoothing.CountWindow)
	check(t.Smoothing.OverrideThreshold > 0 && t.Smoothing.OverrideThreshold <= 1,
		"smoothing.overrideThreshold %v", t.Smoothing.OverrideThreshold)

	return errors.Join(errs...)
}

// FrameInterval is the minimum time between processed frames.
func (t Tuning) FrameInterval() time.Duration {
	return time.Second / time.Duration(t.FrameRate)
}

// HandTracker returns the hand tracker configuration.
func (t Tuning) HandTracker() tracking.Config {
	c := tracking.HandConfig()
	c.MatchThreshold = t.Hand.MatchThreshold
	c.MaxMisses = t.Hand.MaxMisses
	c.Strict = t.Strict
	return c
}

// BoardTracker returns the rectangle tracker configuration.
func (t Tuning) BoardTracker() tracking.Config {
	c := tracking.RectangleConfig()
	c.MatchThreshold = t.Board.MatchThreshold
	c.MaxMisses = t.Board.MaxMisses
	c.Strict = t.Strict
	return c
}

// Classifier returns the finger classifier configuration.
func (t Tuning) Classifier() gesture.Config {
	return gesture.Config{
		AngleThreshold: t.Hand.AngleThreshold,
		ReachRatio:     t.Hand.ReachRatio,
		Mirrored:       t.Mirrored,
	}
}

// Machine returns the board confirmation configuration.
func (t Tuning) Machine() board.MachineConfig {
	return board.MachineConfig{
		Threshold:      t.Board.Threshold,
		RequiredFrames: t.Board.RequiredFrames,
		Window:         t.Board.Window,
		DropRatio:      t.Board.DropRatio,
		MissPenalty:    t.Board.MissPenalty,
	}
}

// SmoothingConfig returns the smoothing configuration.
func (t Tuning) SmoothingConfig() smoothing.Config {
	return smoothing.Config{
		WindowSize:        t.Smoothing.WindowSize,
		MaxAge:            t.Smoothing.MaxAge,
		CountWindow:       t.Smoothing.CountWindow,
		OverrideThreshold: t.Smoothing.OverrideThreshold,
	}
}

// Package audio plays feedback sounds for perception events through
// external sound-pack players.
package audio

import (
	"encoding/json"
	"path/filepath"
	"slices"
)

// Manifest describes a sound pack: the player executable and the sound file
// played for each event kind.
type Manifest struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Executable  string            `json:"executable"`
	Sounds      map[string]string `json:"sounds"`
	Volume      float64           `json:"volume,omitempty"`
}

// Request is sent to the player on stdin.
type Request struct {
	Event    string         `json:"event"`
	EntityID string         `json:"entityId,omitempty"`
	Sound    string         `json:"sound"`
	Volume   float64        `json:"volume"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response is read from the player's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Pack is a discovered sound pack.
type Pack struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// SoundFor returns the absolute path of the sound mapped to an event kind.
func (p *Pack) SoundFor(kind string) (string, bool) {
	file, ok := p.Manifest.Sounds[kind]
	if !ok || file == "" {
		return "", false
	}
	if filepath.IsAbs(file) {
		return file, true
	}
	return filepath.Join(p.Path, file), true
}

// Kinds returns the event kinds the pack has sounds for, sorted.
func (p *Pack) Kinds() []string {
	kinds := make([]string, 0, len(p.Manifest.Sounds))
	for k, file := range p.Manifest.Sounds {
		if file != "" {
			kinds = append(kinds, k)
		}
	}
	slices.Sort(kinds)
	return kinds
}

// volume returns the manifest volume, defaulting to full.
func (p *Pack) volume() float64 {
	if p.Manifest.Volume <= 0 || p.Manifest.Volume > 1 {
		return 1
	}
	return p.Manifest.Volume
}

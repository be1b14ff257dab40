package app

import (
	"fmt"
	"slices"

	"github.com/go-viper/mapstructure/v2"

	"github.com/ayusman/playsight/internal/board"
)

// Game describes a consumer the pipeline knows how to serve.
type Game struct {
	ID string

	// TextRecognition turns on the recognizer's glyph pass while the game
	// is subscribed.
	TextRecognition bool
}

var games = map[string]Game{
	"rps":     {ID: "rps"},
	"fingers": {ID: "fingers"},
	"sudoku":  {ID: "sudoku", TextRecognition: true},
}

// Games returns the known game ids, sorted.
func Games() []string {
	ids := make([]string, 0, len(games))
	for id := range games {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LookupGame returns the game registered under id.
func LookupGame(id string) (Game, bool) {
	g, ok := games[id]
	return g, ok
}

// GameConfig is the per-subscription configuration a game may pass.
type GameConfig struct {
	// GridSize is the board size for cell mapping (4 or 9). Zero keeps the
	// current size.
	GridSize int `mapstructure:"gridSize"`
}

// DecodeGameConfig decodes a consumer configuration map. Values may be
// strings, as they arrive from query parameters. Unknown keys are rejected.
func DecodeGameConfig(raw map[string]any) (GameConfig, error) {
	var gc GameConfig
	if len(raw) == 0 {
		return gc, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &gc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return gc, err
	}
	if err := decoder.Decode(raw); err != nil {
		return gc, fmt.Errorf("game config: %w", err)
	}

	if gc.GridSize != 0 && !board.ValidGridSize(gc.GridSize) {
		return gc, fmt.Errorf("game config: unsupported grid size %d", gc.GridSize)
	}
	return gc, nil
}

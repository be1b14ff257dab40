// Package main provides a sound pack player.
// It plays the requested sound file with the platform's command line player.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Request represents the input from the sound executor.
type Request struct {
	Event    string         `json:"event"`
	EntityID string         `json:"entityId,omitempty"`
	Sound    string         `json:"sound"`
	Volume   float64        `json:"volume"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response represents the output to the sound executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if err := play(req); err != nil {
		writeErrorResponse(fmt.Sprintf("%s: %v", req.Event, err))
		return
	}

	writeSuccessResponse(req.Sound)
}

// play runs the platform player for req.Sound and waits for it to finish.
func play(req Request) error {
	if req.Sound == "" {
		return errors.New("sound is required")
	}
	if _, err := os.Stat(req.Sound); err != nil {
		return err
	}

	name, args, err := buildCommand(runtime.GOOS, req.Sound, req.Volume)
	if err != nil {
		return err
	}

	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// buildCommand returns the player command for goos. volume is clamped to
// [0, 1]; zero means full volume.
func buildCommand(goos, sound string, volume float64) (string, []string, error) {
	if volume <= 0 || volume > 1 {
		volume = 1
	}

	switch goos {
	case "darwin":
		return "afplay", []string{"-v", strconv.FormatFloat(volume, 'f', 2, 64), sound}, nil
	case "linux":
		// paplay volume is linear with 65536 as 100%.
		return "paplay", []string{"--volume=" + strconv.Itoa(int(volume*65536)), sound}, nil
	case "windows":
		script := fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", sound)
		return "powershell", []string{"-NoProfile", "-Command", script}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform %s", goos)
	}
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{
		Success: false,
		Error:   errMsg,
	})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(sound string) {
	data, _ := json.Marshal(map[string]string{"played": sound})
	json.NewEncoder(os.Stdout).Encode(Response{
		Success: true,
		Data:    data,
	})
}

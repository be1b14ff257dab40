package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrTimeout is returned when a player does not finish in time.
var ErrTimeout = errors.New("player timeout")

// Executor runs sound-pack players with a timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an Executor. A non-positive timeout defaults to five
// seconds.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Executor{timeout: timeout}
}

// Timeout returns the per-execution timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs the pack's player with req as JSON on stdin and parses its
// stdout as a Response.
func (e *Executor) Execute(ctx context.Context, pack *Pack, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, pack.Executable)
	cmd.Dir = pack.Path

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %v", ErrTimeout, e.timeout)
	}
	if err != nil {
		if s := stderr.String(); s != "" {
			return nil, fmt.Errorf("player %s failed: %w, stderr: %s", pack.Manifest.Name, err, s)
		}
		return nil, fmt.Errorf("player %s failed: %w", pack.Manifest.Name, err)
	}

	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse player response: %w, stdout: %s", err, stdout.String())
	}
	return &response, nil
}

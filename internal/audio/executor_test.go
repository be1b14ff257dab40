package audio

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePlayer writes an executable shell script into a new pack directory.
func writePlayer(t *testing.T, name, script string) *Pack {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell players are not supported on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))

	return &Pack{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name,
			Sounds:     map[string]string{"handDetected": "hello.wav"},
		},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	pack := writePlayer(t, "ok-player", `cat <<'EOF'
{"success":true,"data":{"message":"played"}}
EOF
`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), pack, &Request{
		Event: "handDetected",
		Sound: "hello.wav",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)

	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "played", data["message"])
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	pack := writePlayer(t, "echo-player", `INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), pack, &Request{
		Event:    "gestureDetected",
		EntityID: "hand-1",
		Sound:    "/tmp/rock.wav",
		Volume:   0.5,
		Metadata: map[string]any{"gesture": "rock"},
	})
	require.NoError(t, err)

	var data struct {
		Received Request `json:"received"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "gestureDetected", data.Received.Event)
	assert.Equal(t, "hand-1", data.Received.EntityID)
	assert.Equal(t, "/tmp/rock.wav", data.Received.Sound)
	assert.InDelta(t, 0.5, data.Received.Volume, 1e-9)
	assert.Equal(t, "rock", data.Received.Metadata["gesture"])
}

func TestExecutor_Timeout(t *testing.T) {
	pack := writePlayer(t, "slow-player", `sleep 10
echo '{"success":true}'
`)

	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), pack, &Request{Event: "handLost"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestExecutor_ErrorResponse(t *testing.T) {
	pack := writePlayer(t, "error-player", `echo '{"success":false,"error":"no audio device"}'
`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), pack, &Request{Event: "handLost"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "no audio device", resp.Error)
}

func TestExecutor_InvalidJSON(t *testing.T) {
	pack := writePlayer(t, "bad-player", `echo 'not valid json'
`)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), pack, &Request{Event: "handLost"})
	assert.Error(t, err)
}

func TestExecutor_NonZeroExit(t *testing.T) {
	pack := writePlayer(t, "exit-player", `echo "Error: something failed" >&2
exit 1
`)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), pack, &Request{Event: "handLost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something failed")
}

func TestNewExecutor(t *testing.T) {
	assert.Equal(t, 3*time.Second, NewExecutor(3*time.Second).Timeout())
	assert.Equal(t, 5*time.Second, NewExecutor(0).Timeout())
}

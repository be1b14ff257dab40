package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/playsight/internal/geometry"
)

// ErrRecognizerNotFound is returned when the recognizer script cannot be located.
var ErrRecognizerNotFound = errors.New("recognizer_service.py not found")

// Frame header flags sent ahead of every frame.
const (
	flagDebug byte = 1 << iota
	flagText
)

// RecognizerDetector implements Detector by talking to an external recognizer
// subprocess (MediaPipe hands, quad finder and digit OCR).
//
// Protocol, per frame: one flags byte, a 4-byte big-endian length and the
// JPEG-encoded frame on stdin; one JSON line on stdout.
type RecognizerDetector struct {
	config    Config
	script    string
	logger    *zap.SugaredLogger
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	debug     bool
	text      bool
	idleTimer *time.Timer
}

// NewRecognizerDetector creates a new recognizer-backed detector.
// The subprocess is started lazily on first detection.
func NewRecognizerDetector(config Config, logger *zap.SugaredLogger) (*RecognizerDetector, error) {
	script := findRecognizerScript()
	if script == "" {
		return nil, ErrRecognizerNotFound
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &RecognizerDetector{
		config: config,
		script: script,
		logger: logger.Named("recognizer"),
	}, nil
}

// Detect sends a frame to the recognizer and parses its observations.
func (d *RecognizerDetector) Detect(frame *gocv.Mat) (Observations, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return Observations{}, nil
	}

	if err := d.ensureStarted(); err != nil {
		return Observations{}, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return Observations{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if err := writeFrame(d.stdin, d.flags(), buf.GetBytes()); err != nil {
		return Observations{}, err
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return Observations{}, fmt.Errorf("read response: %w", err)
	}

	obs, err := decodeResponse(line)
	if err != nil {
		return Observations{}, err
	}
	d.resetIdleTimer()

	return obs, nil
}

func (d *RecognizerDetector) flags() byte {
	var f byte
	if d.debug {
		f |= flagDebug
	}
	if d.text {
		f |= flagText
	}
	return f
}

// SetDebugMode asks the recognizer to emit debug output on stderr.
func (d *RecognizerDetector) SetDebugMode(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.debug = enabled
}

// SetTextRecognition enables glyph recognition in the recognizer.
func (d *RecognizerDetector) SetTextRecognition(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = enabled
}

// Close shuts down the recognizer process.
func (d *RecognizerDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *RecognizerDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.script,
		fmt.Sprintf("--max-hands=%d", d.config.MaxHands),
		fmt.Sprintf("--min-confidence=%.2f", d.config.MinConfidence),
		fmt.Sprintf("--min-tracking-confidence=%.2f", d.config.MinTrackingConf),
	)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start recognizer service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.logger.Infow("recognizer started", "script", d.script, "pid", d.cmd.Process.Pid)

	return nil
}

func (d *RecognizerDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.logger.Infow("recognizer stopped")

	return err
}

func (d *RecognizerDetector) resetIdleTimer() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.shutdown(); err != nil {
			d.logger.Warnw("idle shutdown", "error", err)
		}
	})
}

// writeFrame writes one framed request.
func writeFrame(w io.Writer, flags byte, data []byte) error {
	header := make([]byte, 5)
	header[0] = flags
	binary.BigEndian.PutUint32(header[1:], uint32(len(data)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

func findRecognizerScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/recognizer_service.py",
		"../scripts/recognizer_service.py",
		filepath.Join(execDir, "scripts/recognizer_service.py"),
		filepath.Join(os.Getenv("HOME"), ".playsight/scripts/recognizer_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".playsight/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// Wire format of one recognizer response line.
type jsonResponse struct {
	Hands      []jsonHand  `json:"hands"`
	Rectangles []jsonQuad  `json:"rectangles"`
	Glyphs     []jsonGlyph `json:"glyphs"`
}

type jsonHand struct {
	Points     []geometry.Point `json:"points"`
	Handedness string           `json:"handedness"`
	Score      float64          `json:"score"`
}

type jsonQuad struct {
	Corners []geometry.Point `json:"corners"`
	Score   float64          `json:"score"`
}

type jsonGlyph struct {
	Text  string        `json:"text"`
	Box   geometry.Rect `json:"box"`
	Score float64       `json:"score"`
}

// decodeResponse parses one response line. Hands and quads with the wrong
// number of points are skipped rather than failing the whole frame.
func decodeResponse(line []byte) (Observations, error) {
	var resp jsonResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return Observations{}, fmt.Errorf("parse response: %w", err)
	}

	var obs Observations
	for _, h := range resp.Hands {
		if len(h.Points) != NumLandmarks {
			continue
		}
		hand := HandObservation{
			Chirality:  parseHandedness(h.Handedness),
			Confidence: h.Score,
		}
		copy(hand.Landmarks[:], h.Points)
		hand.BoundingBox = hand.Landmarks.Bounds()
		obs.Hands = append(obs.Hands, hand)
	}

	for _, q := range resp.Rectangles {
		if len(q.Corners) != 4 {
			continue
		}
		rect := RectangleObservation{Confidence: q.Score}
		copy(rect.Corners[:], q.Corners)
		rect.BoundingBox = geometry.Bounds(rect.Corners[:]...)
		obs.Rectangles = append(obs.Rectangles, rect)
	}

	for _, g := range resp.Glyphs {
		obs.Glyphs = append(obs.Glyphs, GlyphObservation{
			Value:       strings.TrimSpace(g.Text),
			BoundingBox: g.Box,
			Confidence:  g.Score,
		})
	}

	return obs, nil
}

func parseHandedness(s string) Chirality {
	switch strings.ToLower(s) {
	case "left":
		return ChiralityLeft
	case "right":
		return ChiralityRight
	default:
		return ChiralityUnknown
	}
}

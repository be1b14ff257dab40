// Package tray provides a system tray interface for the playsight perception service.
package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/getlantern/systray"

	"github.com/ayusman/playsight/internal/events"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(start bool) error
	onSettings func()
	onQuit     func()
	active     bool
	last       string
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuLastEvent *systray.MenuItem
}

// New creates a new Tray instance with no session running.
func New() *Tray {
	return &Tray{}
}

// OnToggle sets the callback run when the session toggle is clicked. start
// is the requested state; an error leaves the state unchanged.
func (t *Tray) OnToggle(fn func(start bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Playsight")
	systray.SetTooltip("Playsight camera games")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.active), "Start or stop the camera session")
	systray.AddSeparator()

	t.menuLastEvent = systray.AddMenuItem(lastTitle(t.last), "Last detected event")
	t.menuLastEvent.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Games...", "Open the games in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Playsight")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(active bool) string {
	if active {
		return "● Session running"
	}
	return "○ Session stopped"
}

func lastTitle(label string) string {
	if label == "" {
		return "Last: none"
	}
	return "Last: " + label
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	want := !t.active
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(want); err != nil {
			systray.SetTooltip("Playsight: " + err.Error())
			return
		}
	}
	systray.SetTooltip("Playsight camera games")
	t.SetActive(want)
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// SetActive updates the session state shown by the toggle.
func (t *Tray) SetActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active = active
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(active))
	}
}

// Active returns the session state shown by the toggle.
func (t *Tray) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// SetLastEvent updates the last event display in the menu.
func (t *Tray) SetLastEvent(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if label == t.last {
		return
	}
	t.last = label
	if t.menuLastEvent != nil {
		t.menuLastEvent.SetTitle(lastTitle(label))
	}
}

// LastEvent returns the label shown in the last event item.
func (t *Tray) LastEvent() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Describe renders an event as a short menu label.
func Describe(ev events.CVEvent) string {
	switch ev.Kind {
	case events.GestureDetected:
		if g, ok := ev.Meta("gesture"); ok {
			return fmt.Sprintf("%v", g)
		}
	case events.FingerCountDetected:
		if n, ok := ev.Meta("count"); ok {
			return fmt.Sprintf("%v fingers", n)
		}
	case events.SudokuCellWritten:
		row, _ := ev.Meta("row")
		col, _ := ev.Meta("col")
		num, _ := ev.Meta("number")
		return fmt.Sprintf("%v at (%v, %v)", num, row, col)
	case events.HandDetected:
		return "hand"
	case events.HandLost:
		return "hand gone"
	case events.SudokuGridDetected:
		return "board"
	case events.SudokuGridLost:
		return "board gone"
	}
	return string(ev.Kind)
}

// Follow polls last on every interval of clk and shows the most recent
// event until ctx is done.
func (t *Tray) Follow(ctx context.Context, clk clock.Clock, interval time.Duration, last func() (events.CVEvent, bool)) {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ev, ok := last(); ok {
				t.SetLastEvent(Describe(ev))
			} else {
				t.SetLastEvent("")
			}
		}
	}
}

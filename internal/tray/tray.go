// Package tray provides a system tray menu for the hand landmark detector.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/handmark/internal/detector"
)

// Tray represents the system tray application. It doubles as a dispatch
// listener so the menu can show the latest result.
type Tray struct {
	onToggle    func(bypass bool) bool
	onDashboard func()
	onQuit      func()
	bypass      bool
	last        string
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a new Tray reflecting the given bypass state.
func New(bypass bool) *Tray {
	return &Tray{
		bypass: bypass,
		last:   "Last: none",
	}
}

// OnToggle sets the callback called when the mode item is clicked. It
// receives the requested bypass state and returns the state in effect.
func (t *Tray) OnToggle(fn func(bypass bool) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the callback for the dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
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

// Quit stops Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Handmark")
	systray.SetTooltip("Handmark hand landmark detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(modeTitle(t.bypass), "Toggle bypass mode")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(t.last, "Last detection result")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Handmark")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func modeTitle(bypass bool) string {
	if bypass {
		return "○ Bypass"
	}
	return "● Detecting"
}

// handleToggle flips the requested mode and shows the mode actually in
// effect.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	requested := !t.bypass
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	bypass := requested
	if callback != nil {
		bypass = callback(requested)
	}
	t.SetBypass(bypass)
}

// SetBypass updates the displayed mode without calling back.
func (t *Tray) SetBypass(bypass bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bypass = bypass
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(modeTitle(bypass))
	}
}

// Bypass returns the displayed mode.
func (t *Tray) Bypass() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bypass
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
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

// OnResults shows a summary of result in the menu.
func (t *Tray) OnResults(result *detector.DetectionResult) {
	t.setLast(Describe(result))
}

// OnError shows the engine error in the menu.
func (t *Tray) OnError(message string) {
	t.setLast("Error: " + message)
}

func (t *Tray) setLast(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = title
	if t.menuLast != nil {
		t.menuLast.SetTitle(title)
	}
}

// Last returns the text of the last result item.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Describe renders a one line summary of a result.
func Describe(r *detector.DetectionResult) string {
	if len(r.Landmarks) == 0 {
		return fmt.Sprintf("Last: no hand (%d ms, %s)", r.InferenceTime, r.Delegate)
	}

	hand := "right"
	if r.IsLeftHand != nil && *r.IsLeftHand {
		hand = "left"
	}
	return fmt.Sprintf("Last: %s hand (%d ms, %s)", hand, r.InferenceTime, r.Delegate)
}

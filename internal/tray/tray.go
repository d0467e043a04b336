// Package tray puts the surface controls in the system tray: pause and
// resume, calibrate, open the dashboard, and the last touched control.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/tabletouch/internal/surface"
)

// Callbacks are invoked from the menu goroutine, never under the tray lock.
// Nil callbacks are skipped.
type Callbacks struct {
	// Toggle receives the new running state.
	Toggle func(running bool)
	// Calibrate commits the staged controls and returns how many were registered.
	Calibrate func() (int, error)
	Dashboard func()
	Quit      func()
}

// Tray is the tray menu. Its state is kept even before Run so it can be
// driven by the pipeline from the start.
type Tray struct {
	cb Callbacks

	mu        sync.RWMutex
	running   bool
	controls  int // -1 until calibrated
	calErr    error
	lastTouch surface.ControlType
	touched   bool

	items struct {
		toggle    *systray.MenuItem
		calibrate *systray.MenuItem
		lastTouch *systray.MenuItem
	}
}

// New creates a Tray in the running state.
func New(cb Callbacks) *Tray {
	return &Tray{cb: cb, running: true, controls: -1}
}

// Run shows the tray and blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.build, func() {})
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) build() {
	systray.SetTitle("TableTouch")
	systray.SetTooltip("TableTouch surface")

	t.mu.Lock()
	t.items.toggle = systray.AddMenuItem(t.toggleTitle(), "Pause or resume the sensor pipeline")
	systray.AddSeparator()
	t.items.calibrate = systray.AddMenuItem(t.calibrateTitle(), "Register the controls currently in view")
	t.items.lastTouch = systray.AddMenuItem(t.lastTouchTitle(), "Last touched control")
	t.items.lastTouch.Disable()
	t.refresh()
	t.mu.Unlock()

	systray.AddSeparator()
	dashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Quit TableTouch")

	go func() {
		for {
			select {
			case <-t.items.toggle.ClickedCh:
				t.toggle()
			case <-t.items.calibrate.ClickedCh:
				t.calibrate()
			case <-dashboard.ClickedCh:
				call(t.cb.Dashboard)
			case <-quit.ClickedCh:
				call(t.cb.Quit)
				systray.Quit()
				return
			}
		}
	}()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func (t *Tray) toggle() {
	t.mu.Lock()
	t.running = !t.running
	running := t.running
	t.refresh()
	t.mu.Unlock()

	if t.cb.Toggle != nil {
		t.cb.Toggle(running)
	}
}

func (t *Tray) calibrate() {
	if t.cb.Calibrate == nil {
		return
	}
	n, err := t.cb.Calibrate()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.calErr = err
	if err == nil {
		t.controls = n
	}
	t.refresh()
}

// SetCalibrated records a calibration committed or resumed outside the menu.
func (t *Tray) SetCalibrated(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controls = n
	t.calErr = nil
	t.refresh()
}

// HandleContacts shows the most recently touched control type.
func (t *Tray) HandleContacts(events []surface.ContactEvent) {
	if len(events) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.touched && t.lastTouch == events[0].ControlType {
		return
	}
	t.lastTouch = events[0].ControlType
	t.touched = true
	t.refresh()
}

// refresh pushes the state into the menu items. Callers hold mu.
func (t *Tray) refresh() {
	if t.items.toggle == nil {
		return
	}
	t.items.toggle.SetTitle(t.toggleTitle())
	t.items.calibrate.SetTitle(t.calibrateTitle())
	t.items.lastTouch.SetTitle(t.lastTouchTitle())
}

func (t *Tray) toggleTitle() string {
	if t.running {
		return "● Running"
	}
	return "○ Paused"
}

func (t *Tray) calibrateTitle() string {
	switch {
	case t.calErr != nil:
		return fmt.Sprintf("Calibrate (failed: %v)", t.calErr)
	case t.controls >= 0:
		return fmt.Sprintf("Recalibrate (%d controls)", t.controls)
	default:
		return "Calibrate"
	}
}

func (t *Tray) lastTouchTitle() string {
	if !t.touched {
		return "Last touch: none"
	}
	return "Last touch: " + t.lastTouch.String()
}

// Running reports whether the pipeline is running.
func (t *Tray) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Status returns the menu titles as they are currently shown.
func (t *Tray) Status() (toggle, calibrate, lastTouch string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.toggleTitle(), t.calibrateTitle(), t.lastTouchTitle()
}

package app

import (
	"errors"
	"sync"
	"time"

	"github.com/ayusman/tabletouch/internal/surface"
)

// ErrAlreadyRunning is returned when the control set is changed after the
// calibration has been committed.
var ErrAlreadyRunning = errors.New("calibration already committed")

// Calibration is the two-phase controller deciding whether frames register
// controls or test them for contact. It starts calibrating; Commit moves it to
// running for the rest of the session.
type Calibration struct {
	mu          sync.RWMutex
	phase       surface.Phase
	staged      []surface.Control
	live        []surface.Control
	committedAt time.Time
}

// NewCalibration returns a controller in the calibrating phase.
func NewCalibration() *Calibration {
	return &Calibration{phase: surface.PhaseCalibrating}
}

// Phase returns the current phase.
func (c *Calibration) Phase() surface.Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Stage replaces the pending control set with the controls found in the
// latest frame. The previous set is discarded, not merged.
func (c *Calibration) Stage(controls []surface.Control) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != surface.PhaseCalibrating {
		return ErrAlreadyRunning
	}
	c.staged = append([]surface.Control(nil), controls...)
	return nil
}

// Staged returns a copy of the pending control set.
func (c *Calibration) Staged() []surface.Control {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]surface.Control(nil), c.staged...)
}

// Commit freezes the most recently staged set as the live controls and
// switches to running. It returns the committed controls.
func (c *Calibration) Commit() ([]surface.Control, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != surface.PhaseCalibrating {
		return nil, ErrAlreadyRunning
	}

	c.live = c.staged
	c.staged = nil
	c.phase = surface.PhaseRunning
	c.committedAt = time.Now()
	return append([]surface.Control(nil), c.live...), nil
}

// Restore commits a previously saved control set without staging it.
func (c *Calibration) Restore(controls []surface.Control) error {
	if err := c.Stage(controls); err != nil {
		return err
	}
	_, err := c.Commit()
	return err
}

// Controls returns a copy of the live control set. It is empty until Commit.
func (c *Calibration) Controls() []surface.Control {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]surface.Control(nil), c.live...)
}

// CommittedAt returns when Commit ran, or the zero time.
func (c *Calibration) CommittedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.committedAt
}

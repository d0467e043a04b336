package app

import (
	"sync"
	"time"
)

// FPSMeter tracks the instantaneous and mean processing rate.
type FPSMeter struct {
	mu      sync.Mutex
	prev    time.Time
	current float64
	sum     float64
	n       int
}

// Tick records a processed frame at now and returns the instantaneous rate.
// The first tick only sets the reference time.
func (m *FPSMeter) Tick(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.prev.IsZero() {
		if d := now.Sub(m.prev); d > 0 {
			m.current = float64(time.Second) / float64(d)
			m.sum += m.current
			m.n++
		}
	}
	m.prev = now
	return m.current
}

// Current returns the rate measured at the last tick.
func (m *FPSMeter) Current() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Mean returns the average of every measured rate.
func (m *FPSMeter) Mean() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

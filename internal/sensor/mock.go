package sensor

import (
	"sync"
)

// MockDevice plays back in-memory frame bundles for testing.
// A nil entry in the sequence simulates a cycle where no frame is available.
type MockDevice struct {
	geometry Geometry
	mapper   CoordinateMapper

	mu      sync.Mutex
	frames  []*Frame
	index   int
	loop    bool
	running bool
}

// NewMockDevice creates a MockDevice that replays frames with a linear mapper.
func NewMockDevice(g Geometry, frames []*Frame, loop bool) *MockDevice {
	return &MockDevice{
		geometry: g,
		mapper:   NewLinearMapper(g),
		frames:   frames,
		loop:     loop,
	}
}

func (d *MockDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	d.index = 0
	return nil
}

func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

func (d *MockDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *MockDevice) Geometry() Geometry       { return d.geometry }
func (d *MockDevice) Mapper() CoordinateMapper { return d.mapper }

// SetMapper replaces the coordinate mapper.
func (d *MockDevice) SetMapper(m CoordinateMapper) {
	d.mapper = m
}

func (d *MockDevice) AcquireFrame() (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil, ErrDeviceNotOpen
	}

	if len(d.frames) == 0 {
		return nil, ErrNoFrame
	}

	if d.index >= len(d.frames) {
		if !d.loop {
			return nil, ErrNoFrame
		}
		d.index = 0
	}

	f := d.frames[d.index]
	d.index++
	if f == nil {
		return nil, ErrNoFrame
	}

	// Clone the frame so the original survives the caller's Close
	return f.Clone(), nil
}

// SetFrames replaces the frame sequence
func (d *MockDevice) SetFrames(frames []*Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = frames
	d.index = 0
}

// Reset restarts playback from the beginning
func (d *MockDevice) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index = 0
}

package scene

import (
	"image"
	"sync"
	"time"

	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/surface"
)

// Device is a sensor.Device that renders a looping script of scenes.
type Device struct {
	geometry sensor.Geometry
	mapper   sensor.CoordinateMapper

	mu      sync.Mutex
	script  []*Scene
	index   int
	running bool
}

// NewDevice creates a Device playing script in a loop.
func NewDevice(g sensor.Geometry, script ...*Scene) *Device {
	return &Device{
		geometry: g,
		mapper:   sensor.NewLinearMapper(g),
		script:   script,
	}
}

// Demo returns a device showing one control of each type with a fingertip
// that hovers over and then presses the square.
func Demo(g sensor.Geometry) *Device {
	base := New(g)
	w, h := g.ColorWidth, g.ColorHeight
	side := h / 4
	gap := w / 12
	square := rectAt(gap, h/3, side, side)
	base.Add(surface.Square, square)
	base.Add(surface.Circle, rectAt(2*gap+side, h/3, side, side))
	base.Add(surface.Slider, rectAt(3*gap+2*side, h/3+side/3, side*3/2, side/2))

	center := square.Min.Add(square.Size().Div(2))
	radius := side / 8
	hover := base.WithFinger(&Finger{Center: center, Radius: radius, Depth: DefaultSurfaceDepth - 100})
	touch := base.WithFinger(&Finger{Center: center, Radius: radius, Depth: DefaultSurfaceDepth - 5})

	return NewDevice(g, base, base, hover, hover, touch, touch, hover)
}

func rectAt(x, y, w, h int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h)
}

func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	d.index = 0
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Device) Geometry() sensor.Geometry       { return d.geometry }
func (d *Device) Mapper() sensor.CoordinateMapper { return d.mapper }

// SetScript replaces the scene sequence and restarts playback.
func (d *Device) SetScript(script ...*Scene) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = script
	d.index = 0
}

// AcquireFrame renders the next scene. A nil scene yields sensor.ErrNoFrame.
func (d *Device) AcquireFrame() (*sensor.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil, sensor.ErrDeviceNotOpen
	}
	if len(d.script) == 0 {
		return nil, sensor.ErrNoFrame
	}

	s := d.script[d.index%len(d.script)]
	d.index++
	if s == nil {
		return nil, sensor.ErrNoFrame
	}
	return s.Render(time.Now().UnixNano()), nil
}

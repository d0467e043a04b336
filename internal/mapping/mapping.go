// Package mapping builds the per-frame correspondence between color pixels and
// depth pixels and samples surface depth over color-space regions.
package mapping

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/surface"
)

// Unmapped marks a color pixel with no depth correspondence.
const Unmapped int32 = -1

// DefaultSlots is the number of correspondence buffers allocated at startup.
const DefaultSlots = 2

// ErrArenaExhausted is returned by Build when every buffer is still held by an
// unreleased Correspondence.
var ErrArenaExhausted = errors.New("correspondence arena exhausted")

// SpatialMapper converts device mapping output into Correspondence maps.
// All buffers are allocated once by NewSpatialMapper and reused across frames.
type SpatialMapper struct {
	geometry sensor.Geometry
	mapper   sensor.CoordinateMapper

	mu     sync.Mutex
	points []sensor.DepthPoint

	free chan []int32
}

// NewSpatialMapper allocates an arena of slots correspondence buffers sized for g.
func NewSpatialMapper(g sensor.Geometry, mapper sensor.CoordinateMapper, slots int) *SpatialMapper {
	if slots <= 0 {
		slots = DefaultSlots
	}

	m := &SpatialMapper{
		geometry: g,
		mapper:   mapper,
		points:   make([]sensor.DepthPoint, g.ColorPixels()),
		free:     make(chan []int32, slots),
	}
	for i := 0; i < slots; i++ {
		m.free <- make([]int32, g.ColorPixels())
	}
	return m
}

// Geometry returns the geometry the arena was sized for.
func (m *SpatialMapper) Geometry() sensor.Geometry {
	return m.geometry
}

// Available returns the number of free buffers.
func (m *SpatialMapper) Available() int {
	return len(m.free)
}

// Build maps every color pixel of the frame into the depth frame.
// The caller must Release the returned Correspondence.
func (m *SpatialMapper) Build(depth sensor.DepthFrame) (*Correspondence, error) {
	g := m.geometry
	if depth.Width != g.DepthWidth || depth.Height != g.DepthHeight || len(depth.Data) != g.DepthPixels() {
		return nil, fmt.Errorf("%w: depth %dx%d (%d values), want %dx%d",
			sensor.ErrGeometryMismatch, depth.Width, depth.Height, len(depth.Data),
			g.DepthWidth, g.DepthHeight)
	}

	var buf []int32
	select {
	case buf = <-m.free:
	default:
		return nil, ErrArenaExhausted
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mapper.MapColorToDepth(depth.Data, m.points); err != nil {
		m.free <- buf
		return nil, fmt.Errorf("map color to depth: %w", err)
	}

	for i, p := range m.points {
		buf[i] = depthIndex(p, g.DepthWidth, g.DepthHeight)
	}

	return &Correspondence{
		geometry: g,
		index:    buf,
		depth:    depth,
		owner:    m,
	}, nil
}

// depthIndex rounds p to the nearest depth pixel and returns its flat index,
// or Unmapped when p is the sentinel or falls outside the depth frame.
func depthIndex(p sensor.DepthPoint, w, h int) int32 {
	if p.IsUnmapped() {
		return Unmapped
	}
	fx, fy := float64(p.X), float64(p.Y)
	if math.IsNaN(fx) || math.IsNaN(fy) {
		return Unmapped
	}

	x := int(math.Floor(fx + 0.5))
	y := int(math.Floor(fy + 0.5))
	if x < 0 || x >= w || y < 0 || y >= h {
		return Unmapped
	}
	return int32(y*w + x)
}

func (m *SpatialMapper) release(buf []int32) {
	m.free <- buf
}

// Correspondence is the color-to-depth map of a single frame.
type Correspondence struct {
	geometry sensor.Geometry
	index    []int32
	depth    sensor.DepthFrame

	owner    *SpatialMapper
	released bool
}

// Len returns the number of entries, one per color pixel.
func (c *Correspondence) Len() int {
	return len(c.index)
}

// DepthIndex returns the depth pixel index for color pixel (x, y), or Unmapped.
func (c *Correspondence) DepthIndex(x, y int) int32 {
	if x < 0 || y < 0 || x >= c.geometry.ColorWidth || y >= c.geometry.ColorHeight {
		return Unmapped
	}
	return c.index[y*c.geometry.ColorWidth+x]
}

// AverageDepth returns the mean reliable depth over the color pixels in box and
// the number of pixels that contributed. A count of zero means no evidence.
func (c *Correspondence) AverageDepth(box image.Rectangle) (float64, int) {
	box = box.Intersect(image.Rect(0, 0, c.geometry.ColorWidth, c.geometry.ColorHeight))
	if box.Empty() {
		return 0, 0
	}

	var mean float64
	var n int
	w := c.geometry.ColorWidth
	for y := box.Min.Y; y < box.Max.Y; y++ {
		row := c.index[y*w : (y+1)*w]
		for x := box.Min.X; x < box.Max.X; x++ {
			idx := row[x]
			if idx == Unmapped {
				continue
			}
			v := c.depth.Data[idx]
			if !c.depth.Reliable(v) {
				continue
			}
			n++
			mean += (float64(v) - mean) / float64(n)
		}
	}
	return mean, n
}

// SampleControl stores the averaged depth under the control's bounds.
// It reports false and leaves the control unchanged when there is no evidence.
func (c *Correspondence) SampleControl(ctrl *surface.Control) bool {
	mean, n := c.AverageDepth(ctrl.Bounds)
	if n == 0 {
		return false
	}
	ctrl.Depth = mean
	ctrl.HasDepth = true
	return true
}

// SampleFingertip stores the averaged depth under the fingertip's bounds.
func (c *Correspondence) SampleFingertip(tip *surface.Fingertip) bool {
	mean, n := c.AverageDepth(tip.Bounds)
	tip.DepthSamples = n
	if n == 0 {
		return false
	}
	tip.Depth = mean
	return true
}

// Release returns the buffer to the arena. It is safe to call more than once.
func (c *Correspondence) Release() {
	if c == nil || c.released {
		return
	}
	c.released = true
	c.owner.release(c.index)
	c.index = nil
}

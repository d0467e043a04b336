package sensor

import (
	"fmt"
	"math"
)

// Kinect v2 stream geometry.
const (
	DefaultColorWidth  = 1920
	DefaultColorHeight = 1080
	DefaultDepthWidth  = 512
	DefaultDepthHeight = 424

	// ColorBytesPerPixel is the packed BGRA pixel size of a color frame.
	ColorBytesPerPixel = 4
)

// Geometry describes the fixed sizes of the color and depth streams.
// It is queried once from the device at startup.
type Geometry struct {
	ColorWidth  int
	ColorHeight int
	DepthWidth  int
	DepthHeight int
}

// DefaultGeometry returns the Kinect v2 stream geometry.
func DefaultGeometry() Geometry {
	return Geometry{
		ColorWidth:  DefaultColorWidth,
		ColorHeight: DefaultColorHeight,
		DepthWidth:  DefaultDepthWidth,
		DepthHeight: DefaultDepthHeight,
	}
}

// ColorPixels returns the number of pixels in a color frame.
func (g Geometry) ColorPixels() int {
	return g.ColorWidth * g.ColorHeight
}

// DepthPixels returns the number of pixels in a depth frame.
func (g Geometry) DepthPixels() int {
	return g.DepthWidth * g.DepthHeight
}

// Validate checks that every dimension is positive.
func (g Geometry) Validate() error {
	if g.ColorWidth <= 0 || g.ColorHeight <= 0 || g.DepthWidth <= 0 || g.DepthHeight <= 0 {
		return fmt.Errorf("%w: non-positive dimension in %+v", ErrGeometryMismatch, g)
	}
	return nil
}

// DepthPoint is a sub-pixel coordinate in depth space.
// Both components are negative infinity when the color pixel has no depth correspondence.
type DepthPoint struct {
	X float32
	Y float32
}

// UnmappedPoint is the sentinel returned for color pixels without depth.
var UnmappedPoint = DepthPoint{X: float32(math.Inf(-1)), Y: float32(math.Inf(-1))}

// IsUnmapped reports whether p is the no-correspondence sentinel.
func (p DepthPoint) IsUnmapped() bool {
	return math.IsInf(float64(p.X), -1) || math.IsInf(float64(p.Y), -1)
}

// CoordinateMapper maps every color pixel of a frame into depth space.
// out has one entry per color pixel in row-major order.
type CoordinateMapper interface {
	MapColorToDepth(depth []uint16, out []DepthPoint) error
}

// LinearMapper maps color pixels to depth pixels with a per-axis scale and offset.
// Points that land outside the depth frame are still reported; callers bound-check them.
type LinearMapper struct {
	Geometry Geometry
	ScaleX   float64
	ScaleY   float64
	OffsetX  float64
	OffsetY  float64

	// Shadow, if set, marks color pixels for which no correspondence exists.
	Shadow func(x, y int) bool
}

// NewLinearMapper returns a mapper that stretches the depth frame over the color frame.
func NewLinearMapper(g Geometry) *LinearMapper {
	return &LinearMapper{
		Geometry: g,
		ScaleX:   float64(g.DepthWidth) / float64(g.ColorWidth),
		ScaleY:   float64(g.DepthHeight) / float64(g.ColorHeight),
	}
}

// MapColorToDepth implements CoordinateMapper.
func (m *LinearMapper) MapColorToDepth(depth []uint16, out []DepthPoint) error {
	if len(depth) != m.Geometry.DepthPixels() {
		return fmt.Errorf("%w: depth buffer has %d values, want %d",
			ErrGeometryMismatch, len(depth), m.Geometry.DepthPixels())
	}
	if len(out) != m.Geometry.ColorPixels() {
		return fmt.Errorf("%w: output buffer has %d entries, want %d",
			ErrGeometryMismatch, len(out), m.Geometry.ColorPixels())
	}

	w := m.Geometry.ColorWidth
	for y := 0; y < m.Geometry.ColorHeight; y++ {
		row := y * w
		dy := float32(float64(y)*m.ScaleY + m.OffsetY)
		for x := 0; x < w; x++ {
			if m.Shadow != nil && m.Shadow(x, y) {
				out[row+x] = UnmappedPoint
				continue
			}
			out[row+x] = DepthPoint{
				X: float32(float64(x)*m.ScaleX + m.OffsetX),
				Y: dy,
			}
		}
	}
	return nil
}

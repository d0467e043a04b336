// Package scene renders synthetic sensor frames: printed control outlines on a
// flat surface, optionally with a fingertip hovering over or touching it.
package scene

import (
	"image"
	"image/color"
	"math/rand"

	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/surface"
)

// Default rendering values.
const (
	DefaultSurfaceDepth = 1000
	DefaultStroke       = 3
)

var (
	paperColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	inkColor    = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	fingerColor = color.RGBA{R: 10, G: 10, B: 10, A: 255}
)

// Shape is a control outline printed on the surface.
type Shape struct {
	Type   surface.ControlType
	Bounds image.Rectangle
}

// Finger is a round fingertip seen from above.
type Finger struct {
	Center image.Point
	Radius int
	Depth  uint16
}

// Scene describes one synthetic frame.
type Scene struct {
	Geometry     sensor.Geometry
	SurfaceDepth uint16
	Stroke       int
	Shapes       []Shape
	Finger       *Finger
}

// New returns an empty scene for g.
func New(g sensor.Geometry) *Scene {
	return &Scene{
		Geometry:     g,
		SurfaceDepth: DefaultSurfaceDepth,
		Stroke:       DefaultStroke,
	}
}

// Add appends a shape and returns the scene.
func (s *Scene) Add(t surface.ControlType, bounds image.Rectangle) *Scene {
	s.Shapes = append(s.Shapes, Shape{Type: t, Bounds: bounds})
	return s
}

// WithFinger returns a copy of the scene with the finger set.
func (s *Scene) WithFinger(f *Finger) *Scene {
	c := *s
	c.Shapes = append([]Shape(nil), s.Shapes...)
	c.Finger = f
	return &c
}

// Render draws the scene into a new frame bundle. The caller must Close it.
func (s *Scene) Render(timestamp int64) *sensor.Frame {
	g := s.Geometry
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(
		float64(paperColor.B), float64(paperColor.G), float64(paperColor.R), 255),
		g.ColorHeight, g.ColorWidth, gocv.MatTypeCV8UC4)

	for _, sh := range s.Shapes {
		DrawShape(&img, sh, inkColor, s.Stroke)
	}
	if s.Finger != nil {
		gocv.Circle(&img, s.Finger.Center, s.Finger.Radius, fingerColor, -1)
	}

	depth, body := s.renderDepth()
	return &sensor.Frame{
		Color: img,
		Depth: sensor.DepthFrame{
			Width:       g.DepthWidth,
			Height:      g.DepthHeight,
			Data:        depth,
			MinReliable: sensor.DefaultMinReliableDepth,
			MaxReliable: sensor.DefaultMaxReliableDepth,
		},
		BodyIndex: body,
		Timestamp: timestamp,
	}
}

// renderDepth produces depth and body-index maps consistent with a
// sensor.LinearMapper for the scene geometry.
func (s *Scene) renderDepth() ([]uint16, []byte) {
	g := s.Geometry
	depth := make([]uint16, g.DepthPixels())
	body := make([]byte, g.DepthPixels())
	for i := range depth {
		depth[i] = s.SurfaceDepth
		body[i] = sensor.BodyIndexNone
	}

	f := s.Finger
	if f == nil {
		return depth, body
	}

	sx := float64(g.DepthWidth) / float64(g.ColorWidth)
	sy := float64(g.DepthHeight) / float64(g.ColorHeight)
	r2 := float64(f.Radius * f.Radius)
	for y := 0; y < g.DepthHeight; y++ {
		cy := float64(y)/sy - float64(f.Center.Y)
		for x := 0; x < g.DepthWidth; x++ {
			cx := float64(x)/sx - float64(f.Center.X)
			if cx*cx+cy*cy <= r2 {
				depth[y*g.DepthWidth+x] = f.Depth
				body[y*g.DepthWidth+x] = 0
			}
		}
	}
	return depth, body
}

// DrawShape draws the outline of a control.
func DrawShape(img *gocv.Mat, sh Shape, c color.RGBA, thickness int) {
	b := sh.Bounds
	switch sh.Type {
	case surface.Circle:
		r := b.Dx()
		if b.Dy() < r {
			r = b.Dy()
		}
		center := image.Pt((b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2)
		gocv.Circle(img, center, r/2, c, thickness)
	case surface.Slider:
		drawTrack(img, b, c, thickness)
	default:
		gocv.Rectangle(img, b, c, thickness)
	}
}

// drawTrack draws a slider track: a rectangle with round caps on its short sides.
func drawTrack(img *gocv.Mat, b image.Rectangle, c color.RGBA, thickness int) {
	if b.Dy() > b.Dx() {
		r := b.Dx() / 2
		top := image.Pt(b.Min.X+r, b.Min.Y+r)
		bottom := image.Pt(b.Min.X+r, b.Max.Y-r)
		gocv.Line(img, image.Pt(b.Min.X, top.Y), image.Pt(b.Min.X, bottom.Y), c, thickness)
		gocv.Line(img, image.Pt(b.Min.X+2*r, top.Y), image.Pt(b.Min.X+2*r, bottom.Y), c, thickness)
		gocv.Ellipse(img, top, image.Pt(r, r), 0, 180, 360, c, thickness)
		gocv.Ellipse(img, bottom, image.Pt(r, r), 0, 0, 180, c, thickness)
		return
	}

	r := b.Dy() / 2
	left := image.Pt(b.Min.X+r, b.Min.Y+r)
	right := image.Pt(b.Max.X-r, b.Min.Y+r)
	gocv.Line(img, image.Pt(left.X, b.Min.Y), image.Pt(right.X, b.Min.Y), c, thickness)
	gocv.Line(img, image.Pt(left.X, b.Min.Y+2*r), image.Pt(right.X, b.Min.Y+2*r), c, thickness)
	gocv.Ellipse(img, left, image.Pt(r, r), 0, 90, 270, c, thickness)
	gocv.Ellipse(img, right, image.Pt(r, r), 0, -90, 90, c, thickness)
}

// RandomShape returns a shape of type t with a random size and position
// that fits inside a w by h canvas.
func RandomShape(rng *rand.Rand, t surface.ControlType, w, h int) Shape {
	size := 60 + rng.Intn(60)
	bw, bh := size, size
	if t == surface.Slider {
		bw = size * 3
		bh = size / 2
	}
	if bw > w-10 {
		bw = w - 10
	}
	if bh > h-10 {
		bh = h - 10
	}
	x := 5 + rng.Intn(w-bw-9)
	y := 5 + rng.Intn(h-bh-9)
	return Shape{Type: t, Bounds: image.Rect(x, y, x+bw, y+bh)}
}

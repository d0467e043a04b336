// Package render draws the pipeline state over a color frame.
package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/surface"
)

// Overlay colors.
var (
	SquareColor       = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	CircleColor       = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	SliderColor       = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	UnclassifiedColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	FingertipColor    = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	ContactColor      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	statusColor       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	statusShadow      = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// ColorFor returns the outline color of a control type.
func ColorFor(t surface.ControlType) color.RGBA {
	switch t {
	case surface.Square:
		return SquareColor
	case surface.Circle:
		return CircleColor
	case surface.Slider:
		return SliderColor
	default:
		return UnclassifiedColor
	}
}

// Overlay is everything drawn over one frame.
type Overlay struct {
	Phase      surface.Phase
	Candidates []surface.Candidate
	Controls   []surface.Control
	Fingertip  *surface.Fingertip
	Contacts   []surface.ContactEvent
	FPS        float64
}

// Config holds configuration options for the renderer.
type Config struct {
	Thickness  int
	FontScale  float64
	ShowStatus bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Thickness:  2,
		FontScale:  0.6,
		ShowStatus: true,
	}
}

// Renderer draws overlays onto copies of color frames.
type Renderer struct {
	config Config
}

// NewRenderer creates a Renderer with the given configuration.
func NewRenderer(config Config) *Renderer {
	return &Renderer{config: config}
}

// Render returns a copy of src with the overlay drawn on it. The caller owns
// the returned image and must Close it.
func (r *Renderer) Render(src gocv.Mat, o Overlay) gocv.Mat {
	out := src.Clone()
	t := r.config.Thickness

	for _, c := range o.Candidates {
		drawPolygon(&out, c.Polygon, UnclassifiedColor, t)
	}

	touched := make(map[string]bool, len(o.Contacts))
	for _, e := range o.Contacts {
		touched[e.ControlID] = true
	}

	for _, c := range o.Controls {
		col := ColorFor(c.Type)
		if touched[c.ID] {
			gocv.Rectangle(&out, c.Bounds, ContactColor, t*2)
		}
		gocv.Rectangle(&out, c.Bounds, col, t)
		gocv.PutText(&out, c.Type.String(), c.Bounds.Min.Add(image.Pt(0, -4)),
			gocv.FontHersheySimplex, r.config.FontScale*0.8, col, 1)
	}

	if tip := o.Fingertip; tip != nil {
		gocv.Circle(&out, tip.Center, int(tip.Size/2)+1, FingertipColor, t)
		gocv.Rectangle(&out, tip.Bounds, FingertipColor, 1)
		if tip.DepthSamples > 0 {
			label := fmt.Sprintf("%.0fmm", tip.Depth)
			gocv.PutText(&out, label, image.Pt(tip.Bounds.Max.X+4, tip.Center.Y),
				gocv.FontHersheySimplex, r.config.FontScale*0.8, FingertipColor, 1)
		}
	}

	if r.config.ShowStatus {
		r.drawStatus(&out, o)
	}
	return out
}

func (r *Renderer) drawStatus(img *gocv.Mat, o Overlay) {
	status := fmt.Sprintf("%s  controls:%d  fps:%.1f", o.Phase, len(o.Controls), o.FPS)
	if o.Phase == surface.PhaseCalibrating {
		status = fmt.Sprintf("%s  candidates:%d  controls:%d  fps:%.1f",
			o.Phase, len(o.Candidates), len(o.Controls), o.FPS)
	}
	if len(o.Contacts) > 0 {
		status += fmt.Sprintf("  touch:%d", len(o.Contacts))
	}

	org := image.Pt(10, 24)
	gocv.PutText(img, status, org.Add(image.Pt(1, 1)), gocv.FontHersheySimplex, r.config.FontScale, statusShadow, 2)
	gocv.PutText(img, status, org, gocv.FontHersheySimplex, r.config.FontScale, statusColor, 1)
}

func drawPolygon(img *gocv.Mat, pts []image.Point, c color.RGBA, thickness int) {
	if len(pts) < 2 {
		return
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.Polylines(img, pv, true, c, thickness)
}

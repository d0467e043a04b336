// Package surface defines the entities shared by the touch-surface pipeline:
// shape candidates, registered controls, the tracked fingertip and contact events.
package surface

import (
	"image"
	"math"
)

// ControlType is the class of a registered control.
// The integer values match the labels the shape classifier is trained with.
type ControlType int

const (
	// Unknown marks a classifier output outside the closed set of control types.
	Unknown ControlType = -1
	// Square is a square push button.
	Square ControlType = 0
	// Circle is a round push button.
	Circle ControlType = 1
	// Slider is an elongated slider track.
	Slider ControlType = 2
)

// ControlTypes lists every registrable control type in label order.
var ControlTypes = []ControlType{Square, Circle, Slider}

// ControlTypeFromLabel maps a classifier label to a ControlType.
// Any label other than 0, 1 or 2 yields Unknown.
func ControlTypeFromLabel(label int) ControlType {
	switch label {
	case 0:
		return Square
	case 1:
		return Circle
	case 2:
		return Slider
	default:
		return Unknown
	}
}

// ParseControlType parses the String form of a ControlType.
func ParseControlType(s string) ControlType {
	switch s {
	case "square":
		return Square
	case "circle":
		return Circle
	case "slider":
		return Slider
	default:
		return Unknown
	}
}

// String returns the lower-case name of the control type.
func (t ControlType) String() string {
	switch t {
	case Square:
		return "square"
	case Circle:
		return "circle"
	case Slider:
		return "slider"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the registrable control types.
func (t ControlType) Valid() bool {
	return t == Square || t == Circle || t == Slider
}

// Candidate is an unclassified polygon region found by the shape detector.
type Candidate struct {
	Polygon []image.Point
	Bounds  image.Rectangle
}

// Vertices returns the number of polygon vertices.
func (c Candidate) Vertices() int {
	return len(c.Polygon)
}

// Control is a classified, registered interactive region.
type Control struct {
	ID     string
	Type   ControlType
	Bounds image.Rectangle

	// Depth is the cached reference depth in millimetres, valid when HasDepth is set.
	Depth    float64
	HasDepth bool
}

// Fingertip is the blob tracked as the pointing finger in a single frame.
type Fingertip struct {
	Center image.Point
	Size   float64
	Bounds image.Rectangle

	Depth        float64
	DepthSamples int
}

// FingertipBounds returns the axis-aligned square that circumscribes a round
// blob of the given diameter centred on center.
func FingertipBounds(center image.Point, size float64) image.Rectangle {
	side := int(size * math.Sqrt2)
	half := side / 2
	minPt := image.Pt(center.X-half, center.Y-half)
	return image.Rectangle{Min: minPt, Max: minPt.Add(image.Pt(side, side))}
}

// ContactEvent asserts that the fingertip touches a control in one frame.
type ContactEvent struct {
	ControlID   string
	ControlType ControlType
	Bounds      image.Rectangle

	// Point is the fingertip centre in color coordinates.
	Point image.Point

	// Difference is fingertip depth minus control depth, in millimetres.
	Difference float64
	Timestamp  int64
}

// Position returns where Point lies along the longer side of Bounds, from 0
// at the left or top edge to 1 at the right or bottom edge.
func (e ContactEvent) Position() float64 {
	b := e.Bounds
	var pos, length int
	if b.Dx() >= b.Dy() {
		pos, length = e.Point.X-b.Min.X, b.Dx()
	} else {
		pos, length = e.Point.Y-b.Min.Y, b.Dy()
	}
	if length <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, float64(pos)/float64(length)))
}

// Phase is the state of the calibration controller.
type Phase int

const (
	// PhaseCalibrating registers controls from every frame.
	PhaseCalibrating Phase = iota
	// PhaseRunning tracks the fingertip against the frozen control set.
	PhaseRunning
)

// String returns the lower-case name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseCalibrating:
		return "calibrating"
	case PhaseRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Overlaps reports whether a and b share a region of positive area.
// Rectangles that only touch along an edge do not overlap.
func Overlaps(a, b image.Rectangle) bool {
	return a.Overlaps(b)
}

// CountByType tallies controls per type.
func CountByType(controls []Control) map[ControlType]int {
	counts := make(map[ControlType]int, len(ControlTypes))
	for _, c := range controls {
		counts[c.Type]++
	}
	return counts
}

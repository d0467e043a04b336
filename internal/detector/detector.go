// Package detector finds control-shaped regions and the pointing fingertip in
// color frames.
package detector

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/surface"
)

// ShapeFinder extracts candidate control outlines from a color frame.
type ShapeFinder interface {
	// Detect returns the candidates and the edge map they were traced from.
	// The caller must Close the result.
	Detect(color gocv.Mat) (*ShapeDetection, error)
}

// FingerFinder locates the pointing fingertip in a color frame.
type FingerFinder interface {
	// Track returns the fingertip, or nil if no blob qualifies.
	Track(color gocv.Mat) (*surface.Fingertip, error)

	// Close releases any resources held by the tracker.
	Close() error
}

// ShapeConfig holds configuration options for shape candidate detection.
type ShapeConfig struct {
	// BlurKernel is the side of the Gaussian kernel applied before edge detection.
	BlurKernel int

	// CannyLowRatio and CannyHighRatio scale the frame's mean intensity into
	// the lower and upper hysteresis thresholds.
	CannyLowRatio  float64
	CannyHighRatio float64
	CannyAperture  int
	L2Gradient     bool

	// ApproxEpsilon is the polygon approximation tolerance as a fraction of
	// the contour's arc length.
	ApproxEpsilon float64

	MinVertices int
	MaxVertices int
	MinWidth    int
	MinHeight   int

	// DuplicateMargin collapses a candidate into an earlier one when every edge
	// of their bounds lies within this many pixels. Negative disables collapsing.
	DuplicateMargin int
}

// DefaultShapeConfig returns a ShapeConfig with sensible default values.
func DefaultShapeConfig() ShapeConfig {
	return ShapeConfig{
		BlurKernel:      3,
		CannyLowRatio:   0.5,
		CannyHighRatio:  1.2,
		CannyAperture:   3,
		L2Gradient:      true,
		ApproxEpsilon:   0.01,
		MinVertices:     4,
		MaxVertices:     19,
		MinWidth:        20,
		MinHeight:       20,
		DuplicateMargin: 8,
	}
}

// TrackerConfig holds configuration options for fingertip tracking.
type TrackerConfig struct {
	MinCircularity float64
	MaxCircularity float64
	MinArea        float64
	MaxArea        float64

	// BlobColor selects dark (0) or light (255) blobs.
	BlobColor int
}

// DefaultTrackerConfig returns a TrackerConfig with sensible default values.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MinCircularity: 0.85,
		MaxCircularity: 1.0,
		MinArea:        30,
		MaxArea:        5000,
		BlobColor:      0,
	}
}

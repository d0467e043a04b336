package detector

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/surface"
)

// ErrEmptyFrame is returned when the input image has no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// ShapeDetection is the output of one shape detection pass.
type ShapeDetection struct {
	Candidates []surface.Candidate

	// Edges is the single-channel edge map the candidates were traced from.
	Edges gocv.Mat
}

// Close releases the edge map.
func (d *ShapeDetection) Close() error {
	if d == nil {
		return nil
	}
	return d.Edges.Close()
}

// ShapeDetector finds closed polygonal outlines in a color frame.
type ShapeDetector struct {
	config ShapeConfig
}

// NewShapeDetector creates a ShapeDetector with the given configuration.
func NewShapeDetector(config ShapeConfig) *ShapeDetector {
	return &ShapeDetector{config: config}
}

// Config returns the detector configuration.
func (d *ShapeDetector) Config() ShapeConfig {
	return d.config
}

// Detect implements ShapeFinder.
func (d *ShapeDetector) Detect(color gocv.Mat) (*ShapeDetection, error) {
	if color.Empty() {
		return nil, ErrEmptyFrame
	}

	gray := gocv.NewMat()
	defer gray.Close()
	toGray(color, &gray)

	blur := gocv.NewMat()
	defer blur.Close()
	if k := d.config.BlurKernel; k > 1 {
		gocv.GaussianBlur(gray, &blur, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	} else {
		gray.CopyTo(&blur)
	}

	// Thresholds follow the frame's own brightness.
	mean := blur.Mean().Val1
	low := float32(d.config.CannyLowRatio * mean)
	high := float32(d.config.CannyHighRatio * mean)

	edges := gocv.NewMat()
	gocv.CannyWithParams(blur, &edges, low, high, d.config.CannyAperture, d.config.L2Gradient)

	contours := gocv.FindContours(edges, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	candidates := make([]surface.Candidate, 0)
	for i := 0; i < contours.Size(); i++ {
		c, ok := d.approximate(contours.At(i))
		if !ok {
			continue
		}
		if d.isDuplicate(c, candidates) {
			continue
		}
		candidates = append(candidates, c)
	}

	return &ShapeDetection{Candidates: candidates, Edges: edges}, nil
}

// DetectCandidates returns only the candidates of a detection pass.
func (d *ShapeDetector) DetectCandidates(color gocv.Mat) ([]surface.Candidate, error) {
	det, err := d.Detect(color)
	if err != nil {
		return nil, err
	}
	defer det.Close()
	return det.Candidates, nil
}

func (d *ShapeDetector) approximate(contour gocv.PointVector) (surface.Candidate, bool) {
	perimeter := gocv.ArcLength(contour, true)
	if perimeter <= 0 {
		return surface.Candidate{}, false
	}

	approx := gocv.ApproxPolyDP(contour, d.config.ApproxEpsilon*perimeter, true)
	defer approx.Close()

	n := approx.Size()
	if n < d.config.MinVertices || n > d.config.MaxVertices {
		return surface.Candidate{}, false
	}

	bounds := gocv.BoundingRect(approx)
	if bounds.Dx() < d.config.MinWidth || bounds.Dy() < d.config.MinHeight {
		return surface.Candidate{}, false
	}

	return surface.Candidate{Polygon: approx.ToPoints(), Bounds: bounds}, true
}

func (d *ShapeDetector) isDuplicate(c surface.Candidate, kept []surface.Candidate) bool {
	if d.config.DuplicateMargin < 0 {
		return false
	}
	for _, k := range kept {
		if sameOutline(c.Bounds, k.Bounds, d.config.DuplicateMargin) {
			return true
		}
	}
	return false
}

// sameOutline reports whether a and b trace the same printed stroke: contour
// tracing yields one loop per side of each edge, all a few pixels apart.
func sameOutline(a, b image.Rectangle, margin int) bool {
	return absInt(a.Min.X-b.Min.X) <= margin &&
		absInt(a.Min.Y-b.Min.Y) <= margin &&
		absInt(a.Max.X-b.Max.X) <= margin &&
		absInt(a.Max.Y-b.Max.Y) <= margin
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// toGray converts a BGRA, BGR or single-channel image to grayscale.
func toGray(src gocv.Mat, dst *gocv.Mat) {
	switch src.Channels() {
	case 4:
		gocv.CvtColor(src, dst, gocv.ColorBGRAToGray)
	case 3:
		gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	default:
		src.CopyTo(dst)
	}
}

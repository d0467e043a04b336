// Package classifier assigns a control type to shape candidates from a
// gradient-histogram descriptor of their edge patch.
package classifier

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/surface"
)

// ErrEmptyRegion is returned when a candidate's region lies outside the image.
var ErrEmptyRegion = errors.New("candidate region is empty")

// Config holds configuration options for the shape classifier.
type Config struct {
	Descriptor DescriptorConfig

	// Inflate grows the candidate bounds on each side by this fraction of
	// their width and height before cropping.
	Inflate float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Descriptor: DefaultDescriptorConfig(),
		Inflate:    0.1,
	}
}

// Classifier wraps a trained model and the descriptor pipeline feeding it.
// Without a model it reports itself unavailable and classifies nothing.
type Classifier struct {
	config Config

	mu    sync.Mutex
	hog   *HOG
	model *Model
}

// New creates a classifier without a model.
func New(config Config) (*Classifier, error) {
	hog, err := NewHOG(config.Descriptor)
	if err != nil {
		return nil, err
	}
	return &Classifier{config: config, hog: hog}, nil
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config {
	return c.config
}

// Available reports whether a model is loaded.
func (c *Classifier) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model != nil
}

// Model returns the loaded model, or nil.
func (c *Classifier) Model() *Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetModel installs m. A nil model makes the classifier unavailable.
func (c *Classifier) SetModel(m *Model) error {
	if m != nil && m.Descriptor != c.config.Descriptor {
		return fmt.Errorf("%w: model %+v, configured %+v", ErrDescriptorMismatch, m.Descriptor, c.config.Descriptor)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = m
	return nil
}

// Region returns the inflated, image-clipped crop rectangle for bounds.
func (c *Classifier) Region(bounds image.Rectangle, size image.Point) image.Rectangle {
	dx := int(float64(bounds.Dx()) * c.config.Inflate)
	dy := int(float64(bounds.Dy()) * c.config.Inflate)
	r := image.Rect(bounds.Min.X-dx, bounds.Min.Y-dy, bounds.Max.X+dx, bounds.Max.Y+dy)
	return r.Intersect(image.Rectangle{Max: size})
}

// Preprocess crops the candidate's region out of scene and scales it to the
// canonical patch. The caller must Close the returned patch.
func (c *Classifier) Preprocess(bounds image.Rectangle, scene gocv.Mat) (gocv.Mat, error) {
	r := c.Region(bounds, image.Pt(scene.Cols(), scene.Rows()))
	if r.Empty() {
		return gocv.Mat{}, ErrEmptyRegion
	}

	crop := scene.Region(r)
	defer crop.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	switch crop.Channels() {
	case 4:
		gocv.CvtColor(crop, &gray, gocv.ColorBGRAToGray)
	case 3:
		gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)
	default:
		crop.CopyTo(&gray)
	}

	side := c.config.Descriptor.PatchSize
	patch := gocv.NewMat()
	gocv.Resize(gray, &patch, image.Pt(side, side), 0, 0, gocv.InterpolationLinear)
	return patch, nil
}

// Features returns the descriptor of a preprocessed patch.
func (c *Classifier) Features(patch gocv.Mat) ([]float64, error) {
	side := c.config.Descriptor.PatchSize
	if patch.Rows() != side || patch.Cols() != side || patch.Channels() != 1 {
		return nil, fmt.Errorf("patch is %dx%dx%d, want %dx%dx1",
			patch.Cols(), patch.Rows(), patch.Channels(), side, side)
	}

	data := patch.ToBytes()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hog.Compute(data)
}

// Describe preprocesses the candidate and returns its descriptor.
func (c *Classifier) Describe(bounds image.Rectangle, scene gocv.Mat) ([]float64, error) {
	patch, err := c.Preprocess(bounds, scene)
	if err != nil {
		return nil, err
	}
	defer patch.Close()
	return c.Features(patch)
}

// Classify returns the control type of the candidate, or surface.Unknown when
// no model is loaded or the model's answer is outside the known set.
func (c *Classifier) Classify(candidate surface.Candidate, scene gocv.Mat) surface.ControlType {
	m := c.Model()
	if m == nil {
		return surface.Unknown
	}

	features, err := c.Describe(candidate.Bounds, scene)
	if err != nil {
		return surface.Unknown
	}

	t, err := m.PredictType(features)
	if err != nil {
		return surface.Unknown
	}
	return t
}

// Package contact decides when the tracked fingertip touches a registered control.
package contact

import (
	"math"

	"github.com/ayusman/tabletouch/internal/surface"
)

// DefaultThreshold is the largest fingertip-to-control depth difference, in
// millimetres, still counted as a touch.
const DefaultThreshold = 15.0

// DepthSampler averages depth under a control's bounds in the current frame.
// mapping.Correspondence implements it.
type DepthSampler interface {
	SampleControl(c *surface.Control) bool
}

// Config holds configuration options for contact detection.
type Config struct {
	Threshold float64

	// UseReferenceDepth compares against the depth cached for each control at
	// calibration instead of sampling it again every frame.
	UseReferenceDepth bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold}
}

// Detector compares fingertip depth with the depth of every control it overlaps.
type Detector struct {
	config Config
}

// NewDetector creates a Detector with the given configuration.
func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Detect returns one event per overlapped control whose surface depth matches
// the fingertip depth. The fingertip must already carry this frame's depth
// sample; a fingertip with no depth samples, or a control without depth
// evidence, never produces an event.
func (d *Detector) Detect(tip *surface.Fingertip, controls []surface.Control, sampler DepthSampler, timestamp int64) []surface.ContactEvent {
	if tip == nil || tip.DepthSamples == 0 || len(controls) == 0 {
		return nil
	}

	var events []surface.ContactEvent
	for _, c := range controls {
		if !surface.Overlaps(tip.Bounds, c.Bounds) {
			continue
		}

		ref := c
		if !d.config.UseReferenceDepth || !ref.HasDepth {
			ref.HasDepth = false
			if !sampler.SampleControl(&ref) {
				continue
			}
		}

		diff := tip.Depth - ref.Depth
		if math.Abs(diff) < d.config.Threshold {
			events = append(events, surface.ContactEvent{
				ControlID:   c.ID,
				ControlType: c.Type,
				Bounds:      c.Bounds,
				Point:       tip.Center,
				Difference:  diff,
				Timestamp:   timestamp,
			})
		}
	}
	return events
}

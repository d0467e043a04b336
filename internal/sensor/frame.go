// Package sensor defines the synchronized color/depth frame bundle delivered by the
// sensor device and the device implementations used to obtain it.
package sensor

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrNoFrame is returned when a required frame is not available this cycle.
	ErrNoFrame = errors.New("frame not available")
	// ErrGeometryMismatch is returned when frame dimensions disagree with the configured geometry.
	ErrGeometryMismatch = errors.New("frame geometry mismatch")
	// ErrDeviceNotOpen is returned when acquiring from a device that is not open.
	ErrDeviceNotOpen = errors.New("device is not open")
)

// BodyIndexNone marks a depth pixel that does not belong to a tracked body.
const BodyIndexNone = 0xff

// DepthFrame holds one distance value in millimetres per depth pixel.
type DepthFrame struct {
	Width  int
	Height int
	Data   []uint16

	// MinReliable and MaxReliable bound the distances the sensor vouches for.
	MinReliable uint16
	MaxReliable uint16
}

// Reliable reports whether d lies inside the reliable range and is non-zero.
func (d DepthFrame) Reliable(v uint16) bool {
	if v == 0 {
		return false
	}
	if v < d.MinReliable {
		return false
	}
	if d.MaxReliable != 0 && v > d.MaxReliable {
		return false
	}
	return true
}

// Frame is a synchronized bundle of color, depth and optional body-index data.
// The pipeline only reads from it. Close releases the color buffer.
type Frame struct {
	Color     gocv.Mat
	Depth     DepthFrame
	BodyIndex []byte
	Timestamp int64

	closed bool
}

// Close releases the frame's native resources. It is safe to call more than once.
func (f *Frame) Close() error {
	if f == nil || f.closed {
		return nil
	}
	f.closed = true
	return f.Color.Close()
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := &Frame{
		Color:     f.Color.Clone(),
		Depth:     f.Depth,
		Timestamp: f.Timestamp,
	}
	c.Depth.Data = append([]uint16(nil), f.Depth.Data...)
	if f.BodyIndex != nil {
		c.BodyIndex = append([]byte(nil), f.BodyIndex...)
	}
	return c
}

// Validate checks that the frame carries every required stream and that each
// stream matches the configured geometry.
func (f *Frame) Validate(g Geometry, requireBodyIndex bool) error {
	if f == nil || f.Color.Empty() || len(f.Depth.Data) == 0 {
		return ErrNoFrame
	}
	if requireBodyIndex && len(f.BodyIndex) == 0 {
		return ErrNoFrame
	}

	if f.Color.Cols() != g.ColorWidth || f.Color.Rows() != g.ColorHeight {
		return fmt.Errorf("%w: color %dx%d, want %dx%d", ErrGeometryMismatch,
			f.Color.Cols(), f.Color.Rows(), g.ColorWidth, g.ColorHeight)
	}
	if f.Color.Channels() != ColorBytesPerPixel {
		return fmt.Errorf("%w: color has %d channels, want %d", ErrGeometryMismatch,
			f.Color.Channels(), ColorBytesPerPixel)
	}
	if f.Depth.Width != g.DepthWidth || f.Depth.Height != g.DepthHeight ||
		len(f.Depth.Data) != g.DepthPixels() {
		return fmt.Errorf("%w: depth %dx%d (%d values), want %dx%d", ErrGeometryMismatch,
			f.Depth.Width, f.Depth.Height, len(f.Depth.Data), g.DepthWidth, g.DepthHeight)
	}
	if len(f.BodyIndex) != 0 && len(f.BodyIndex) != g.DepthPixels() {
		return fmt.Errorf("%w: body index has %d values, want %d", ErrGeometryMismatch,
			len(f.BodyIndex), g.DepthPixels())
	}
	return nil
}

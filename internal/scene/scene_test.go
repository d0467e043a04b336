package scene

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/surface"
)

var testGeometry = sensor.Geometry{ColorWidth: 320, ColorHeight: 240, DepthWidth: 160, DepthHeight: 120}

func TestScene_Render(t *testing.T) {
	s := New(testGeometry).Add(surface.Square, image.Rect(40, 40, 120, 120))
	s = s.WithFinger(&Finger{Center: image.Pt(80, 80), Radius: 10, Depth: 950})

	f := s.Render(42)
	defer f.Close()

	require.NoError(t, f.Validate(testGeometry, true))
	assert.Equal(t, int64(42), f.Timestamp)

	// color (80, 80) -> depth (40, 40)
	assert.Equal(t, uint16(950), f.Depth.Data[40*160+40])
	assert.Equal(t, byte(0), f.BodyIndex[40*160+40])
	assert.Equal(t, uint16(DefaultSurfaceDepth), f.Depth.Data[0])
	assert.Equal(t, byte(sensor.BodyIndexNone), f.BodyIndex[0])

	// finger pixels are dark, paper is light
	assert.Less(t, f.Color.GetUCharAt(80, 80*4), uint8(50))
	assert.Greater(t, f.Color.GetUCharAt(5, 5*4), uint8(150))
}

func TestScene_WithFingerCopies(t *testing.T) {
	base := New(testGeometry).Add(surface.Circle, image.Rect(10, 10, 100, 100))
	withFinger := base.WithFinger(&Finger{Center: image.Pt(50, 50), Radius: 5, Depth: 900})

	withFinger.Add(surface.Square, image.Rect(150, 10, 200, 60))
	assert.Nil(t, base.Finger)
	assert.Len(t, base.Shapes, 1)
	assert.Len(t, withFinger.Shapes, 2)
}

func TestRandomShape_FitsCanvas(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	canvas := image.Rect(0, 0, 320, 240)

	for i := 0; i < 200; i++ {
		ct := surface.ControlTypes[i%len(surface.ControlTypes)]
		sh := RandomShape(rng, ct, 320, 240)
		assert.True(t, sh.Bounds.In(canvas), "shape %v outside canvas", sh.Bounds)
		assert.Equal(t, ct, sh.Type)
		if ct == surface.Slider {
			assert.Greater(t, sh.Bounds.Dx(), sh.Bounds.Dy())
		}
	}
}

func TestDevice(t *testing.T) {
	s := New(testGeometry)
	dev := NewDevice(testGeometry, s, nil)

	_, err := dev.AcquireFrame()
	assert.ErrorIs(t, err, sensor.ErrDeviceNotOpen)

	require.NoError(t, dev.Open())
	defer dev.Close()

	f, err := dev.AcquireFrame()
	require.NoError(t, err)
	f.Close()

	_, err = dev.AcquireFrame()
	assert.ErrorIs(t, err, sensor.ErrNoFrame)

	// loops back to the first scene
	f, err = dev.AcquireFrame()
	require.NoError(t, err)
	f.Close()
}

func TestDemo(t *testing.T) {
	dev := Demo(testGeometry)
	require.NoError(t, dev.Open())
	defer dev.Close()

	assert.Equal(t, testGeometry, dev.Geometry())
	for i := 0; i < 7; i++ {
		f, err := dev.AcquireFrame()
		require.NoError(t, err)
		require.NoError(t, f.Validate(testGeometry, false))
		f.Close()
	}
}

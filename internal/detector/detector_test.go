package detector

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/scene"
	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/surface"
)

var testGeometry = sensor.Geometry{ColorWidth: 320, ColorHeight: 240, DepthWidth: 160, DepthHeight: 120}

func renderColor(t *testing.T, s *scene.Scene) gocv.Mat {
	t.Helper()
	f := s.Render(1)
	t.Cleanup(func() { f.Close() })
	return f.Color
}

func near(a, b image.Rectangle, tol int) bool {
	return sameOutline(a, b, tol)
}

func TestDefaultConfigs(t *testing.T) {
	sc := DefaultShapeConfig()
	assert.Equal(t, 0.5, sc.CannyLowRatio)
	assert.Equal(t, 1.2, sc.CannyHighRatio)
	assert.Equal(t, 0.01, sc.ApproxEpsilon)
	assert.Equal(t, 4, sc.MinVertices)
	assert.Equal(t, 19, sc.MaxVertices)
	assert.Equal(t, 20, sc.MinWidth)
	assert.Equal(t, 20, sc.MinHeight)

	tc := DefaultTrackerConfig()
	assert.Equal(t, 0.85, tc.MinCircularity)
	assert.Equal(t, 1.0, tc.MaxCircularity)
	assert.Equal(t, 30.0, tc.MinArea)
}

func TestShapeDetector_EmptyFrame(t *testing.T) {
	d := NewShapeDetector(DefaultShapeConfig())
	_, err := d.Detect(gocv.NewMat())
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestShapeDetector_BlankFrame(t *testing.T) {
	d := NewShapeDetector(DefaultShapeConfig())
	img := renderColor(t, scene.New(testGeometry))

	det, err := d.Detect(img)
	require.NoError(t, err)
	defer det.Close()

	assert.Empty(t, det.Candidates)
	assert.Equal(t, img.Rows(), det.Edges.Rows())
	assert.Equal(t, img.Cols(), det.Edges.Cols())
}

func TestShapeDetector_SingleSquare(t *testing.T) {
	d := NewShapeDetector(DefaultShapeConfig())
	square := image.Rect(100, 60, 180, 140)
	img := renderColor(t, scene.New(testGeometry).Add(surface.Square, square))

	candidates, err := d.DetectCandidates(img)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, 4, c.Vertices())
	assert.True(t, near(c.Bounds, square, 4), "bounds %v, want near %v", c.Bounds, square)
}

func TestShapeDetector_EachControlType(t *testing.T) {
	d := NewShapeDetector(DefaultShapeConfig())
	s := scene.New(testGeometry).
		Add(surface.Square, image.Rect(10, 20, 90, 100)).
		Add(surface.Circle, image.Rect(110, 20, 210, 120)).
		Add(surface.Slider, image.Rect(20, 150, 260, 210))
	img := renderColor(t, s)

	candidates, err := d.DetectCandidates(img)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	for _, sh := range s.Shapes {
		found := false
		for _, c := range candidates {
			if near(c.Bounds, sh.Bounds, 4) {
				found = true
				assert.GreaterOrEqual(t, c.Vertices(), 4)
				assert.LessOrEqual(t, c.Vertices(), 19)
			}
		}
		assert.True(t, found, "no candidate for %s at %v", sh.Type, sh.Bounds)
	}
}

func TestShapeDetector_Rejects(t *testing.T) {
	d := NewShapeDetector(DefaultShapeConfig())

	t.Run("too small", func(t *testing.T) {
		img := renderColor(t, scene.New(testGeometry).Add(surface.Square, image.Rect(50, 50, 62, 62)))
		candidates, err := d.DetectCandidates(img)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("triangle", func(t *testing.T) {
		img := renderColor(t, scene.New(testGeometry))
		pts := gocv.NewPointsVectorFromPoints([][]image.Point{{
			image.Pt(160, 30), image.Pt(250, 200), image.Pt(70, 200),
		}})
		defer pts.Close()
		gocv.Polylines(&img, pts, true, color.RGBA{40, 40, 40, 255}, 3)

		candidates, err := d.DetectCandidates(img)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("jagged", func(t *testing.T) {
		img := renderColor(t, scene.New(testGeometry))
		pts := gocv.NewPointsVectorFromPoints([][]image.Point{star(image.Pt(160, 120), 105, 55, 15)})
		defer pts.Close()
		gocv.FillPoly(&img, pts, color.RGBA{40, 40, 40, 255})

		candidates, err := d.DetectCandidates(img)
		require.NoError(t, err)
		assert.Empty(t, candidates, "30 vertices is above the cap")

		loose := DefaultShapeConfig()
		loose.MaxVertices = 40
		candidates, err = NewShapeDetector(loose).DetectCandidates(img)
		require.NoError(t, err)
		require.NotEmpty(t, candidates, "the same outline passes once the cap is raised")
		assert.Greater(t, candidates[0].Vertices(), DefaultShapeConfig().MaxVertices)
	})
}

// star returns the 2*points vertices of a star alternating between the outer
// and inner radius.
func star(center image.Point, outer, inner float64, points int) []image.Point {
	pts := make([]image.Point, 0, 2*points)
	for i := 0; i < 2*points; i++ {
		r := outer
		if i%2 == 1 {
			r = inner
		}
		a := math.Pi * float64(i) / float64(points)
		pts = append(pts, image.Pt(
			center.X+int(math.Round(r*math.Sin(a))),
			center.Y-int(math.Round(r*math.Cos(a))),
		))
	}
	return pts
}

func TestSameOutline(t *testing.T) {
	a := image.Rect(100, 100, 200, 200)

	tests := []struct {
		name string
		b    image.Rectangle
		want bool
	}{
		{"identical", a, true},
		{"inner wall", image.Rect(103, 103, 197, 197), true},
		{"outer wall", image.Rect(96, 96, 204, 204), true},
		{"shifted", image.Rect(120, 100, 220, 200), false},
		{"nested control", image.Rect(130, 130, 170, 170), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameOutline(a, tt.b, 8))
		})
	}
}

func TestLargestKeyPoint(t *testing.T) {
	_, ok := largestKeyPoint(nil)
	assert.False(t, ok)

	kps := []gocv.KeyPoint{
		{X: 1, Size: 10},
		{X: 2, Size: 30},
		{X: 3, Size: 30},
		{X: 4, Size: 20},
	}
	best, ok := largestKeyPoint(kps)
	require.True(t, ok)
	assert.Equal(t, 2.0, best.X, "ties resolve to the first found")
}

func TestFingertipTracker(t *testing.T) {
	tracker := NewFingertipTracker(DefaultTrackerConfig())
	defer tracker.Close()

	base := scene.New(testGeometry).Add(surface.Square, image.Rect(100, 60, 220, 180))

	t.Run("finger over control", func(t *testing.T) {
		img := renderColor(t, base.WithFinger(&scene.Finger{Center: image.Pt(160, 120), Radius: 10, Depth: 950}))

		tip, err := tracker.Track(img)
		require.NoError(t, err)
		require.NotNil(t, tip)

		assert.InDelta(t, 160, tip.Center.X, 2)
		assert.InDelta(t, 120, tip.Center.Y, 2)
		assert.InDelta(t, 20, tip.Size, 4)
		assert.Equal(t, int(tip.Size*math.Sqrt2), tip.Bounds.Dx())
		assert.True(t, tip.Bounds.Overlaps(image.Rect(100, 60, 220, 180)))
	})

	t.Run("largest of two", func(t *testing.T) {
		s := base.WithFinger(&scene.Finger{Center: image.Pt(160, 120), Radius: 14, Depth: 950})
		img := renderColor(t, s)
		gocv.Circle(&img, image.Pt(40, 40), 6, color.RGBA{10, 10, 10, 255}, -1)

		tip, err := tracker.Track(img)
		require.NoError(t, err)
		require.NotNil(t, tip)
		assert.InDelta(t, 160, tip.Center.X, 2)
	})

	t.Run("no finger", func(t *testing.T) {
		tip, err := tracker.Track(renderColor(t, base))
		require.NoError(t, err)
		assert.Nil(t, tip)
	})

	t.Run("speck below min area", func(t *testing.T) {
		img := renderColor(t, base.WithFinger(&scene.Finger{Center: image.Pt(160, 120), Radius: 2, Depth: 950}))
		tip, err := tracker.Track(img)
		require.NoError(t, err)
		assert.Nil(t, tip)
	})

	t.Run("empty frame", func(t *testing.T) {
		_, err := tracker.Track(gocv.NewMat())
		assert.ErrorIs(t, err, ErrEmptyFrame)
	})
}

func TestFingertipTracker_Close(t *testing.T) {
	tracker := NewFingertipTracker(DefaultTrackerConfig())
	require.NoError(t, tracker.Close())
	require.NoError(t, tracker.Close())

	tip, err := tracker.Track(renderColor(t, scene.New(testGeometry)))
	assert.NoError(t, err)
	assert.Nil(t, tip)
}

func TestMockDetector(t *testing.T) {
	m := NewMockDetector()
	img := renderColor(t, scene.New(testGeometry))

	m.SetCandidates([]surface.Candidate{{Bounds: image.Rect(0, 0, 30, 30)}})
	det, err := m.Detect(img)
	require.NoError(t, err)
	assert.Len(t, det.Candidates, 1)
	assert.Equal(t, 1, det.Edges.Channels())
	det.Close()

	tip, err := m.Track(img)
	require.NoError(t, err)
	assert.Nil(t, tip)

	m.SetFingertip(&surface.Fingertip{Center: image.Pt(5, 5)})
	tip, err = m.Track(img)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(5, 5), tip.Center)

	m.SetError(ErrEmptyFrame)
	_, err = m.Detect(img)
	assert.ErrorIs(t, err, ErrEmptyFrame)
	assert.Equal(t, 4, m.Calls())
}

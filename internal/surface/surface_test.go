package surface

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControlTypeFromLabel(t *testing.T) {
	tests := []struct {
		label int
		want  ControlType
	}{
		{0, Square},
		{1, Circle},
		{2, Slider},
		{3, Unknown},
		{-1, Unknown},
		{42, Unknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ControlTypeFromLabel(tt.label), "label %d", tt.label)
	}
}

func TestControlType_StringRoundTrip(t *testing.T) {
	for _, ct := range ControlTypes {
		assert.Equal(t, ct, ParseControlType(ct.String()))
		assert.True(t, ct.Valid())
	}
	assert.False(t, Unknown.Valid())
	assert.Equal(t, Unknown, ParseControlType("triangle"))
}

func TestOverlaps(t *testing.T) {
	base := image.Rect(0, 0, 10, 10)

	tests := []struct {
		name  string
		other image.Rectangle
		want  bool
	}{
		{"identical", image.Rect(0, 0, 10, 10), true},
		{"contained", image.Rect(2, 2, 4, 4), true},
		{"partial", image.Rect(5, 5, 15, 15), true},
		{"touching right edge", image.Rect(10, 0, 20, 10), false},
		{"touching corner", image.Rect(10, 10, 20, 20), false},
		{"disjoint", image.Rect(30, 30, 40, 40), false},
		{"empty", image.Rect(3, 3, 3, 3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(base, tt.other))
			assert.Equal(t, tt.want, Overlaps(tt.other, base))
		})
	}
}

func TestFingertipBounds(t *testing.T) {
	b := FingertipBounds(image.Pt(100, 100), 20)

	// 20 * sqrt(2) = 28.28 -> 28
	assert.Equal(t, 28, b.Dx())
	assert.Equal(t, 28, b.Dy())
	assert.Equal(t, image.Pt(86, 86), b.Min)

	center := image.Pt((b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2)
	assert.Equal(t, image.Pt(100, 100), center)
}

func TestCountByType(t *testing.T) {
	controls := []Control{
		{Type: Square}, {Type: Square}, {Type: Circle}, {Type: Slider},
	}
	counts := CountByType(controls)
	assert.Equal(t, 2, counts[Square])
	assert.Equal(t, 1, counts[Circle])
	assert.Equal(t, 1, counts[Slider])
}

func TestContactEvent_Position(t *testing.T) {
	tests := []struct {
		name   string
		bounds image.Rectangle
		point  image.Point
		want   float64
	}{
		{"horizontal start", image.Rect(100, 50, 300, 90), image.Pt(100, 70), 0},
		{"horizontal quarter", image.Rect(100, 50, 300, 90), image.Pt(150, 70), 0.25},
		{"vertical middle", image.Rect(10, 100, 40, 300), image.Pt(25, 200), 0.5},
		{"clamped past end", image.Rect(100, 50, 300, 90), image.Pt(320, 70), 1},
		{"clamped before start", image.Rect(100, 50, 300, 90), image.Pt(90, 70), 0},
		{"empty bounds", image.Rectangle{}, image.Pt(5, 5), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ContactEvent{Bounds: tt.bounds, Point: tt.point}
			assert.InDelta(t, tt.want, e.Position(), 1e-9)
		})
	}
}

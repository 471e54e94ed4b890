package geometry

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoU_Disjoint(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
	}{
		{"side by side", Rect{0, 0, 10, 10}, Rect{20, 0, 30, 10}},
		{"stacked", Rect{0, 0, 10, 10}, Rect{0, 11, 10, 20}},
		{"diagonal", Rect{0, 0, 5, 5}, Rect{6, 6, 9, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.0, IoU(tt.a, tt.b))
			assert.Equal(t, 0.0, IoU(tt.b, tt.a))
		})
	}
}

func TestIoU_Identical(t *testing.T) {
	boxes := []Rect{
		{0, 0, 10, 10},
		{12.5, 3, 40, 90.25},
		{100, 100, 101, 101},
	}
	for _, b := range boxes {
		assert.Equal(t, 1.0, IoU(b, b))
	}
}

func TestIoU_PartialOverlap(t *testing.T) {
	// 5x10 overlap, areas 100 + 100 - 50
	got := IoU(Rect{0, 0, 10, 10}, Rect{5, 0, 15, 10})
	assert.InDelta(t, 50.0/150.0, got, 1e-12)
}

func TestIoU_Degenerate(t *testing.T) {
	// Two zero-area boxes at the same point have an empty union.
	p := Rect{5, 5, 5, 5}
	assert.Equal(t, 0.0, IoU(p, p))

	// Touching edges intersect with zero area.
	assert.Equal(t, 0.0, IoU(Rect{0, 0, 10, 10}, Rect{10, 0, 20, 10}))
}

func TestIoU_Symmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomRect := func() Rect {
		x1, y1 := rng.Float64()*100, rng.Float64()*100
		return Rect{x1, y1, x1 + rng.Float64()*50, y1 + rng.Float64()*50}
	}

	for i := 0; i < 500; i++ {
		a, b := randomRect(), randomRect()
		ab, ba := IoU(a, b), IoU(b, a)
		if ab != ba {
			t.Fatalf("IoU not symmetric for %+v %+v: %v != %v", a, b, ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("IoU out of range: %v", ab)
		}
	}
}

func TestExpand(t *testing.T) {
	got := Expand(Rect{10, 20, 30, 60}, 0.5)
	assert.Equal(t, Rect{0, 0, 40, 80}, got)

	assert.Equal(t, Rect{1, 2, 3, 4}, Expand(Rect{1, 2, 3, 4}, 0))
}

func TestContainsPoint(t *testing.T) {
	r := Rect{0, 0, 10, 10}

	assert.True(t, ContainsPoint(r, Point{5, 5}))
	assert.False(t, ContainsPoint(r, Point{0, 5}), "left edge is not interior")
	assert.False(t, ContainsPoint(r, Point{10, 10}), "corner is not interior")
	assert.False(t, ContainsPoint(r, Point{11, 5}))
}

func TestRectHelpers(t *testing.T) {
	r := Rect{10.4, 20.6, 30.5, 40}

	assert.InDelta(t, 20.1, r.Width(), 1e-9)
	assert.InDelta(t, 19.4, r.Height(), 1e-9)
	assert.Equal(t, Point{15, 25}, Rect{10, 20, 20, 30}.Center())
	assert.Equal(t, image.Rect(10, 21, 31, 40), r.Image())
	assert.Equal(t, 0.0, Rect{5, 5, 1, 1}.Area())
}

func TestClamp(t *testing.T) {
	got := Clamp(Rect{-5, -1, 700, 300}, 640, 480)
	assert.Equal(t, Rect{0, 0, 640, 300}, got)
}

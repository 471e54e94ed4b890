package annotate

import (
	"testing"
	"time"

	"visionguard/internal/classifier"
	"visionguard/internal/detection"
	"visionguard/internal/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func blankFrame(t *testing.T) gocv.Mat {
	t.Helper()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 320, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return frame
}

// bgr returns the pixel at (row, col) in OpenCV channel order.
func bgr(m gocv.Mat, row, col int) []uint8 {
	return []uint8(m.GetVecbAt(row, col))
}

func TestLabel(t *testing.T) {
	obj := detection.Detection{ClassID: 43, Confidence: 0.876}
	assert.Equal(t, "knife 0.88", Label(detection.COCO(), obj))
	assert.Equal(t, "class500 0.50", Label(detection.COCO(), detection.Detection{ClassID: 500, Confidence: 0.5}))
}

func TestCooldownText(t *testing.T) {
	assert.Equal(t, "Cooldown: 4s", CooldownText(4900*time.Millisecond))
	assert.Equal(t, "Cooldown: 0s", CooldownText(-time.Second))
}

func TestAnnotate_DoesNotMutateInput(t *testing.T) {
	frame := blankFrame(t)
	before := frame.ToBytes()

	classified := classifier.ClassifiedFrame{
		People: []detection.Detection{
			{ClassID: 0, Confidence: 0.9, Box: geometry.Rect{X1: 10, Y1: 10, X2: 100, Y2: 200}},
		},
		AlertObjects: []detection.Detection{
			{ClassID: 43, Confidence: 0.9, Box: geometry.Rect{X1: 150, Y1: 60, X2: 250, Y2: 180}},
		},
	}

	out, err := New(detection.COCO(), 0.25).Annotate(frame, classified, Overlay{ShowCooldown: true, CooldownRemaining: 3 * time.Second, Banner: true})
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, before, frame.ToBytes())
	assert.NotEqual(t, before, out.ToBytes())
	assert.Equal(t, frame.Rows(), out.Rows())
	assert.Equal(t, frame.Cols(), out.Cols())
}

func TestAnnotate_Colors(t *testing.T) {
	frame := blankFrame(t)

	classified := classifier.ClassifiedFrame{
		People: []detection.Detection{
			{ClassID: 0, Confidence: 0.9, Box: geometry.Rect{X1: 10, Y1: 10, X2: 100, Y2: 200}},
		},
		AlertObjects: []detection.Detection{
			{ClassID: 43, Confidence: 0.9, Box: geometry.Rect{X1: 150, Y1: 60, X2: 200, Y2: 120}},
			{ClassID: 76, Confidence: 0.2, Box: geometry.Rect{X1: 230, Y1: 60, X2: 300, Y2: 120}},
		},
	}

	out, err := New(detection.COCO(), 0.25).Annotate(frame, classified, Overlay{})
	require.NoError(t, err)
	defer out.Close()

	// Bottom edges are clear of the labels drawn above each box.
	assert.Equal(t, []uint8{255, 0, 0}, bgr(out, 200, 50), "person box is blue")
	assert.Equal(t, []uint8{0, 0, 255}, bgr(out, 120, 175), "confident object is red")
	assert.Equal(t, []uint8{0, 255, 255}, bgr(out, 120, 265), "weak object is yellow")
	assert.Equal(t, []uint8{0, 0, 0}, bgr(out, 230, 310), "background untouched")
}

func TestAnnotate_NoDetectionsIsCopy(t *testing.T) {
	frame := blankFrame(t)

	out, err := New(detection.COCO(), 0.25).Annotate(frame, classifier.ClassifiedFrame{}, Overlay{ShowCooldown: true, Banner: true})
	require.NoError(t, err)
	defer out.Close()

	// Overlays only appear with alert objects present.
	assert.Equal(t, frame.ToBytes(), out.ToBytes())
}

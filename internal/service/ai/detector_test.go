package ai

import (
	"path/filepath"
	"testing"

	"visionguard/internal/config"
	"visionguard/internal/detection"
	"visionguard/internal/geometry"
	"visionguard/internal/logger"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matrix builds a [4+classes, anchors] accessor from per-anchor columns.
func matrix(columns [][]float32) (func(r, c int) float32, int, int) {
	return func(r, c int) float32 { return columns[c][r] }, len(columns[0]), len(columns)
}

func TestDecodeOutput(t *testing.T) {
	// cx, cy, w, h, score(class 0), score(class 1)
	at, rows, anchors := matrix([][]float32{
		{100, 100, 40, 20, 0.1, 0.8},
		{300, 300, 10, 10, 0.02, 0.01},
		{50, 60, 20, 20, 0.6, 0.3},
	})

	got := decodeOutput(at, rows, anchors, 0.05, 2, 0.5)

	want := []detection.Detection{
		{ClassID: 1, Confidence: float64(float32(0.8)), Box: geometry.Rect{X1: 160, Y1: 45, X2: 240, Y2: 55}},
		{ClassID: 0, Confidence: float64(float32(0.6)), Box: geometry.Rect{X1: 80, Y1: 25, X2: 120, Y2: 35}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decodeOutput mismatch (-want +got):\n%s", diff)
	}
}

func TestSuppress(t *testing.T) {
	box := geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
	shifted := geometry.Rect{X1: 1, Y1: 0, X2: 11, Y2: 10}
	far := geometry.Rect{X1: 50, Y1: 50, X2: 60, Y2: 60}

	got := suppress([]detection.Detection{
		{ClassID: 43, Confidence: 0.5, Box: shifted},
		{ClassID: 43, Confidence: 0.9, Box: box},
		{ClassID: 0, Confidence: 0.7, Box: box},
		{ClassID: 43, Confidence: 0.4, Box: far},
	}, 0.45)

	require.Len(t, got, 3)
	assert.Equal(t, 0.9, got[0].Confidence, "highest confidence wins")
	assert.Equal(t, 0, got[1].ClassID, "other classes are not suppressed")
	assert.Equal(t, far, got[2].Box)
}

func TestNewDetectorService_MissingModel(t *testing.T) {
	dir := t.TempDir()
	log := logger.NewLogger(&config.Config{LogDirectory: dir})
	defer log.Close()

	_, err := NewDetectorService(&config.Config{ModelPath: filepath.Join(dir, "missing.onnx")}, log)
	assert.ErrorContains(t, err, "model file not found")
}

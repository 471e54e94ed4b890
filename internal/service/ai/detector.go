package ai

import (
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"visionguard/internal/config"
	"visionguard/internal/detection"
	"visionguard/internal/geometry"
	"visionguard/internal/logger"

	"gocv.io/x/gocv"
)

// boxRows is the number of leading output rows holding cx, cy, w, h.
const boxRows = 4

// DetectorService runs a YOLOv8 ONNX model and implements detection.Detector.
// The underlying network is not safe for concurrent use, so calls are serialized.
type DetectorService struct {
	net          gocv.Net
	modelPath    string
	inputSize    int
	confidence   float64
	nmsThreshold float64
	logger       *logger.Logger
	mu           sync.Mutex
}

// NewDetectorService loads the model named by config.ModelPath.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		modelPath:    config.ModelPath,
		inputSize:    config.DetectorInputSize,
		confidence:   config.DetectorConfidence,
		nmsThreshold: config.DetectorNMSThreshold,
		logger:       logger,
	}
	if service.inputSize <= 0 {
		service.inputSize = 640
	}

	if err := service.initializeNet(); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	net := gocv.ReadNetFromONNX(s.modelPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s", s.modelPath)
	return nil
}

// Detect runs the network on a BGR frame and returns boxes in frame pixels.
func (s *DetectorService) Detect(frame gocv.Mat) ([]detection.Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.net.Empty() {
		return nil, fmt.Errorf("detection network not initialized")
	}

	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(s.inputSize, s.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	// YOLOv8 output is [1, 4+classes, anchors].
	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] <= boxRows {
		return nil, fmt.Errorf("unexpected model output shape %v", sizes)
	}

	rows := output.Reshape(1, sizes[1])
	defer rows.Close()

	scaleX := float64(frame.Cols()) / float64(s.inputSize)
	scaleY := float64(frame.Rows()) / float64(s.inputSize)

	candidates := decodeOutput(func(r, c int) float32 { return rows.GetFloatAt(r, c) }, sizes[1], sizes[2], s.confidence, scaleX, scaleY)
	results := suppress(candidates, s.nmsThreshold)

	bounds := func(d detection.Detection) detection.Detection {
		d.Box = geometry.Clamp(d.Box, float64(frame.Cols()), float64(frame.Rows()))
		return d
	}
	for i := range results {
		results[i] = bounds(results[i])
	}
	return results, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}

// decodeOutput reads a [4+classes, anchors] matrix through at and keeps anchors whose
// best class score exceeds minConfidence. Boxes are scaled back by scaleX and scaleY.
func decodeOutput(at func(row, col int) float32, rows, anchors int, minConfidence, scaleX, scaleY float64) []detection.Detection {
	var out []detection.Detection
	for j := 0; j < anchors; j++ {
		bestClass, bestScore := -1, float32(0)
		for r := boxRows; r < rows; r++ {
			if score := at(r, j); score > bestScore {
				bestClass, bestScore = r-boxRows, score
			}
		}
		if bestClass < 0 || float64(bestScore) <= minConfidence {
			continue
		}

		cx, cy := float64(at(0, j)), float64(at(1, j))
		w, h := float64(at(2, j)), float64(at(3, j))
		out = append(out, detection.Detection{
			ClassID:    bestClass,
			Confidence: float64(bestScore),
			Box: geometry.Rect{
				X1: (cx - w/2) * scaleX,
				Y1: (cy - h/2) * scaleY,
				X2: (cx + w/2) * scaleX,
				Y2: (cy + h/2) * scaleY,
			},
		})
	}
	return out
}

// suppress applies greedy per-class non-maximum suppression, highest confidence first.
func suppress(dets []detection.Detection, iouThreshold float64) []detection.Detection {
	sorted := append([]detection.Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var kept []detection.Detection
	for _, cand := range sorted {
		overlaps := false
		for _, k := range kept {
			if k.ClassID == cand.ClassID && geometry.IoU(k.Box, cand.Box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}
	return kept
}

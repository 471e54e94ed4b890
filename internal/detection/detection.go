// Package detection defines the per-frame detection records produced by a detector
// and the class-id mapping used to interpret them.
package detection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"visionguard/internal/geometry"

	"gocv.io/x/gocv"
)

// PersonClassID is the COCO-80 class id for "person".
const PersonClassID = 0

// Detection is one object instance reported by the detector for a single frame.
type Detection struct {
	ClassID    int           `json:"class_id"`
	Confidence float64       `json:"confidence"`
	Box        geometry.Rect `json:"box"`
}

// Detector runs object detection on a single decoded frame.
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
	Close() error
}

// ClassMap maps model class ids to human-readable labels.
type ClassMap map[int]string

// Name returns the label for a class id, or "class<ID>" when unknown.
func (m ClassMap) Name(classID int) string {
	if name, ok := m[classID]; ok {
		return name
	}
	return fmt.Sprintf("class%d", classID)
}

// IDs returns the class ids in ascending order.
func (m ClassMap) IDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Merge returns a new map holding the entries of m overridden by other.
func (m ClassMap) Merge(other ClassMap) ClassMap {
	merged := make(ClassMap, len(m)+len(other))
	for id, name := range m {
		merged[id] = name
	}
	for id, name := range other {
		merged[id] = name
	}
	return merged
}

// ParseClassMap parses "43:knife,76:scissors" into a ClassMap.
// Entries without a name ("43") are accepted and labelled from fallback.
func ParseClassMap(spec string, fallback ClassMap) (ClassMap, error) {
	result := make(ClassMap)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		idPart, name, hasName := strings.Cut(entry, ":")
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid class id %q", idPart)
		}

		name = strings.TrimSpace(name)
		if !hasName || name == "" {
			name = fallback.Name(id)
		}
		result[id] = name
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no classes in %q", spec)
	}
	return result, nil
}

// COCO returns the 80-class COCO label set in the index order used by YOLO models.
func COCO() ClassMap {
	names := []string{
		"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
		"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
		"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
		"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
		"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
		"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
		"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
		"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
		"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
		"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
		"toothbrush",
	}

	m := make(ClassMap, len(names))
	for i, name := range names {
		m[i] = name
	}
	return m
}

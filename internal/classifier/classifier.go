// Package classifier decides which objects of interest in a frame are close enough
// to a person to raise an alert.
package classifier

import (
	"fmt"

	"visionguard/internal/detection"
	"visionguard/internal/geometry"

	"github.com/samber/lo"
)

// Kind selects the overlap rule applied to each candidate object.
type Kind string

const (
	// KindIoU lowers the confidence bar as the object overlaps a person more.
	KindIoU Kind = "iou"
	// KindZone accepts objects whose centre falls inside a padded zone around a person.
	KindZone Kind = "zone"
	// KindThreshold accepts any object above the base confidence, people or not.
	KindThreshold Kind = "threshold"
)

// Policy is the classifier configuration. Only the fields relevant to Kind are consulted.
type Policy struct {
	Kind          Kind
	PersonClassID int
	ObjectClasses detection.ClassMap

	BaseThreshold float64
	// iou
	MinIoU       float64
	OverlapRatio float64
	// zone
	ZonePadding        float64
	ZoneThresholdRatio float64
}

// DefaultPolicy returns the IoU policy with knife and scissors as objects of interest.
func DefaultPolicy() Policy {
	return Policy{
		Kind:               KindIoU,
		PersonClassID:      detection.PersonClassID,
		ObjectClasses:      detection.ClassMap{43: "knife", 76: "scissors"},
		BaseThreshold:      0.25,
		MinIoU:             0.1,
		OverlapRatio:       0.8,
		ZonePadding:        0.2,
		ZoneThresholdRatio: 0.6,
	}
}

// Validate reports configuration errors.
func (p Policy) Validate() error {
	switch p.Kind {
	case KindIoU, KindZone, KindThreshold:
	default:
		return fmt.Errorf("unknown policy %q", p.Kind)
	}
	if len(p.ObjectClasses) == 0 {
		return fmt.Errorf("no object classes configured")
	}
	if _, clash := p.ObjectClasses[p.PersonClassID]; clash {
		return fmt.Errorf("person class %d is also an object class", p.PersonClassID)
	}
	if p.BaseThreshold < 0 || p.BaseThreshold > 1 {
		return fmt.Errorf("base threshold %.2f out of range [0,1]", p.BaseThreshold)
	}
	if p.Kind == KindIoU && (p.MinIoU < 0 || p.MinIoU > 1 || p.OverlapRatio < 0 || p.OverlapRatio > 1) {
		return fmt.Errorf("iou parameters out of range: min_iou=%.2f overlap_ratio=%.2f", p.MinIoU, p.OverlapRatio)
	}
	if p.Kind == KindZone && (p.ZonePadding < 0 || p.ZoneThresholdRatio < 0) {
		return fmt.Errorf("zone parameters must not be negative")
	}
	return nil
}

// ClassifiedFrame is the per-frame result: every person, and the objects judged alert-worthy.
type ClassifiedFrame struct {
	People       []detection.Detection
	AlertObjects []detection.Detection
}

// HasAlert reports whether any object was judged alert-worthy.
func (c ClassifiedFrame) HasAlert() bool {
	return len(c.AlertObjects) > 0
}

// Classify partitions one frame's detections and applies the policy.
// Both output slices keep detector order.
func Classify(dets []detection.Detection, p Policy) ClassifiedFrame {
	people := lo.Filter(dets, func(d detection.Detection, _ int) bool {
		return d.ClassID == p.PersonClassID
	})
	candidates := lo.Filter(dets, func(d detection.Detection, _ int) bool {
		_, ok := p.ObjectClasses[d.ClassID]
		return ok && d.ClassID != p.PersonClassID
	})

	var accept func(detection.Detection, []detection.Detection) bool
	switch p.Kind {
	case KindZone:
		accept = p.acceptZone
	case KindThreshold:
		accept = p.acceptThreshold
	default:
		accept = p.acceptIoU
	}

	return ClassifiedFrame{
		People: people,
		AlertObjects: lo.Filter(candidates, func(d detection.Detection, _ int) bool {
			return accept(d, people)
		}),
	}
}

func (p Policy) acceptIoU(obj detection.Detection, people []detection.Detection) bool {
	// A confident detection is flagged regardless of overlap, even with nobody in frame.
	if obj.Confidence > p.BaseThreshold {
		return true
	}
	for _, person := range people {
		iou := geometry.IoU(obj.Box, person.Box)
		dynamic := p.BaseThreshold * (1 - p.OverlapRatio*iou)
		if iou > p.MinIoU && obj.Confidence > dynamic {
			return true
		}
	}
	return false
}

func (p Policy) acceptZone(obj detection.Detection, people []detection.Detection) bool {
	if obj.Confidence <= p.BaseThreshold*p.ZoneThresholdRatio {
		return false
	}
	center := obj.Box.Center()
	for _, person := range people {
		if geometry.ContainsPoint(geometry.Expand(person.Box, p.ZonePadding), center) {
			return true
		}
	}
	return false
}

func (p Policy) acceptThreshold(obj detection.Detection, _ []detection.Detection) bool {
	return obj.Confidence > p.BaseThreshold
}

// Package annotate draws classifier results onto copies of video frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"visionguard/internal/classifier"
	"visionguard/internal/detection"

	"gocv.io/x/gocv"
)

var (
	personColor  = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	alertColor   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	warningColor = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	overlayColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

// Overlay holds the optional cosmetic text drawn on top of the detections.
type Overlay struct {
	ShowCooldown      bool
	CooldownRemaining time.Duration
	Banner            bool
}

// Annotator draws people and alert objects. Objects above Threshold are drawn in red,
// the rest in yellow.
type Annotator struct {
	Labels    detection.ClassMap
	Threshold float64
}

// New creates an Annotator.
func New(labels detection.ClassMap, threshold float64) *Annotator {
	return &Annotator{Labels: labels, Threshold: threshold}
}

// Annotate returns an annotated clone of frame. frame itself is never modified;
// the caller owns the returned Mat and must Close it.
func (a *Annotator) Annotate(frame gocv.Mat, classified classifier.ClassifiedFrame, overlay Overlay) (gocv.Mat, error) {
	out := frame.Clone()

	for _, person := range classified.People {
		if err := gocv.Rectangle(&out, person.Box.Image(), personColor, 1); err != nil {
			out.Close()
			return gocv.NewMat(), fmt.Errorf("failed to draw person box: %w", err)
		}
	}

	for _, obj := range classified.AlertObjects {
		c := warningColor
		if obj.Confidence > a.Threshold {
			c = alertColor
		}

		rect := obj.Box.Image()
		if err := gocv.Rectangle(&out, rect, c, 2); err != nil {
			out.Close()
			return gocv.NewMat(), fmt.Errorf("failed to draw object box: %w", err)
		}

		label := Label(a.Labels, obj)
		if err := gocv.PutText(&out, label, image.Pt(rect.Min.X, rect.Min.Y-10), gocv.FontHersheySimplex, 0.7, c, 2); err != nil {
			out.Close()
			return gocv.NewMat(), fmt.Errorf("failed to draw label: %w", err)
		}
	}

	if err := a.drawOverlay(&out, classified, overlay); err != nil {
		out.Close()
		return gocv.NewMat(), err
	}

	return out, nil
}

func (a *Annotator) drawOverlay(out *gocv.Mat, classified classifier.ClassifiedFrame, overlay Overlay) error {
	if overlay.Banner && classified.HasAlert() {
		if err := gocv.PutText(out, "ALERT", image.Pt(20, 40), gocv.FontHersheySimplex, 1.0, alertColor, 2); err != nil {
			return fmt.Errorf("failed to draw banner: %w", err)
		}
	}

	if overlay.ShowCooldown && classified.HasAlert() {
		text := CooldownText(overlay.CooldownRemaining)
		// Hershey simplex at 0.8 is roughly 15px per character.
		x := out.Cols() - len(text)*15 - 40
		y := out.Rows() - 80
		if err := gocv.PutText(out, text, image.Pt(max(x, 0), max(y, 0)), gocv.FontHersheySimplex, 0.8, overlayColor, 2); err != nil {
			return fmt.Errorf("failed to draw cooldown: %w", err)
		}
	}
	return nil
}

// Label formats "<class_name> <confidence>" for an object.
func Label(labels detection.ClassMap, obj detection.Detection) string {
	return fmt.Sprintf("%s %.2f", labels.Name(obj.ClassID), obj.Confidence)
}

// CooldownText renders the remaining cooldown in whole seconds.
func CooldownText(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("Cooldown: %ds", int(remaining/time.Second))
}

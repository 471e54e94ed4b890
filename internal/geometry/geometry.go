// Package geometry holds the rectangle math used to relate detections to each other.
package geometry

import (
	"image"
	"math"
)

// Point is a position in frame pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned box given by its top-left (X1, Y1) and bottom-right (X2, Y2) corners.
type Rect struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float64 {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the box.
func (r Rect) Height() float64 {
	return r.Y2 - r.Y1
}

// Area returns width*height, or 0 for an inverted box.
func (r Rect) Area() float64 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the centroid of the box.
func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Image converts the box to an integer rectangle suitable for drawing.
func (r Rect) Image() image.Rectangle {
	return image.Rect(int(math.Round(r.X1)), int(math.Round(r.Y1)), int(math.Round(r.X2)), int(math.Round(r.Y2)))
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
// Disjoint boxes and boxes with no union area yield exactly 0.
func IoU(a, b Rect) float64 {
	left := math.Max(a.X1, b.X1)
	top := math.Max(a.Y1, b.Y1)
	right := math.Min(a.X2, b.X2)
	bottom := math.Min(a.Y2, b.Y2)

	if right < left || bottom < top {
		return 0
	}

	intersection := (right - left) * (bottom - top)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Expand grows r by padding*width on the left and right and padding*height on the top and bottom.
func Expand(r Rect, padding float64) Rect {
	dx := padding * r.Width()
	dy := padding * r.Height()
	return Rect{X1: r.X1 - dx, Y1: r.Y1 - dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

// ContainsPoint reports whether p lies strictly inside r. Points on an edge are outside.
func ContainsPoint(r Rect, p Point) bool {
	return p.X > r.X1 && p.X < r.X2 && p.Y > r.Y1 && p.Y < r.Y2
}

// Clamp limits r to the frame [0, width] x [0, height].
func Clamp(r Rect, width, height float64) Rect {
	return Rect{
		X1: math.Min(math.Max(r.X1, 0), width),
		Y1: math.Min(math.Max(r.Y1, 0), height),
		X2: math.Min(math.Max(r.X2, 0), width),
		Y2: math.Min(math.Max(r.Y2, 0), height),
	}
}

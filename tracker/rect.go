package tracker

import (
	"image"
	"math"
)

// Rect is an axis aligned bounding box in frame pixel coordinates with the
// top left corner at X, Y
type Rect struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
}

// NewRect creates a new Rect with given coordinates
func NewRect(x, y, width, height float32) Rect {
	return Rect{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// NewRectFromCenter creates a Rect from its center point and size
func NewRectFromCenter(cx, cy, width, height float64) Rect {
	return Rect{
		X:      float32(cx - width/2),
		Y:      float32(cy - height/2),
		Width:  float32(width),
		Height: float32(height),
	}
}

// RectFromImage converts an integer image rectangle
func RectFromImage(r image.Rectangle) Rect {
	return NewRect(float32(r.Min.X), float32(r.Min.Y), float32(r.Dx()), float32(r.Dy()))
}

// Center returns the center point of the rectangle
func (r Rect) Center() (cx, cy float64) {
	return float64(r.X) + float64(r.Width)/2, float64(r.Y) + float64(r.Height)/2
}

// BRX returns the bottom-right x coordinate of the rectangle
func (r Rect) BRX() float32 {
	return r.X + r.Width
}

// BRY returns the bottom-right y coordinate of the rectangle
func (r Rect) BRY() float32 {
	return r.Y + r.Height
}

// Valid returns true when the rectangle has positive finite dimensions
func (r Rect) Valid() bool {

	for _, v := range []float32{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}

	return r.Width > 0 && r.Height > 0
}

// Image returns the rectangle rounded to integer pixel coordinates
func (r Rect) Image() image.Rectangle {
	x := int(math.Round(float64(r.X)))
	y := int(math.Round(float64(r.Y)))

	return image.Rect(x, y,
		x+int(math.Round(float64(r.Width))),
		y+int(math.Round(float64(r.Height))))
}

// CalcIoU calculates the Intersection over Union (IoU) with another rectangle
func (r Rect) CalcIoU(other Rect) float32 {

	iw := min(r.BRX(), other.BRX()) - max(r.X, other.X)
	ih := min(r.BRY(), other.BRY()) - max(r.Y, other.Y)

	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := r.Width*r.Height + other.Width*other.Height - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

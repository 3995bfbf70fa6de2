package postprocess

import (
	"image"

	clipper "github.com/ctessum/go.clipper"
)

// ClipPolygon intersects the closed polygon pts with the frame rectangle
// (0,0)-(w-1,h-1) and returns the resulting outline.  Nil is returned when the
// polygon lies fully outside the frame
func ClipPolygon(pts []image.Point, w, h int) []image.Point {

	if len(pts) < 3 || w <= 0 || h <= 0 {
		return nil
	}

	var subject clipper.Path

	for _, pt := range pts {
		subject = append(subject, &clipper.IntPoint{X: clipper.CInt(pt.X), Y: clipper.CInt(pt.Y)})
	}

	maxX := clipper.CInt(w - 1)
	maxY := clipper.CInt(h - 1)

	frame := clipper.Path{
		&clipper.IntPoint{X: 0, Y: 0},
		&clipper.IntPoint{X: maxX, Y: 0},
		&clipper.IntPoint{X: maxX, Y: maxY},
		&clipper.IntPoint{X: 0, Y: maxY},
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(subject, clipper.PtSubject, true)
	c.AddPath(frame, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero, clipper.PftNonZero)

	if !ok || len(solution) == 0 {
		return nil
	}

	// a convex polygon clipped by a rectangle yields a single outline, keep
	// the one with the most vertices should rounding produce slivers
	best := 0

	for i := 1; i < len(solution); i++ {
		if len(solution[i]) > len(solution[best]) {
			best = i
		}
	}

	points := make([]image.Point, 0, len(solution[best]))

	for _, pt := range solution[best] {
		points = append(points, image.Point{X: int(pt.X), Y: int(pt.Y)})
	}

	return points
}

package tracker

import (
	"image"

	"gocv.io/x/gocv"
)

// GoCVTracker adapts a Tracker to the gocv.Tracker interface so it can be
// used in place of the OpenCV contrib trackers
type GoCVTracker struct {
	t *Tracker
	// obj is passed to Init on every call
	obj Object
	// lastErr is the error of the most recent Init or Update call
	lastErr error
}

var _ gocv.Tracker = (*GoCVTracker)(nil)

// NewGoCVTracker wraps the tracker.  The tracker is closed when the adapter
// is closed
func NewGoCVTracker(t *Tracker, obj Object) *GoCVTracker {
	return &GoCVTracker{
		t:   t,
		obj: obj,
	}
}

// Init initializes the tracker with the object inside boundingBox
func (g *GoCVTracker) Init(img gocv.Mat, boundingBox image.Rectangle) bool {
	g.lastErr = g.t.Init(img, RectFromImage(boundingBox), g.obj)
	return g.lastErr == nil
}

// Update tracks the object in the next frame returning the rounded box
func (g *GoCVTracker) Update(img gocv.Mat) (image.Rectangle, bool) {

	res, err := g.t.Track(img)
	g.lastErr = err

	if err != nil {
		return g.t.Box().Image(), false
	}

	defer res.Close()

	return res.Box.Image(), true
}

// Err returns the error of the most recent Init or Update call
func (g *GoCVTracker) Err() error {
	return g.lastErr
}

// Tracker returns the wrapped tracker
func (g *GoCVTracker) Tracker() *Tracker {
	return g.t
}

// Close frees the wrapped tracker
func (g *GoCVTracker) Close() error {
	return g.t.Close()
}

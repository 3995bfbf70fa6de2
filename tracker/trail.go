package tracker

import "sync"

// Point represents the x,y coordinates of the center of a tracked box
type Point struct {
	X, Y int
}

// Track represents a track history
type Track struct {
	points []Point
}

// Trail is the struct to keep a history of tracked box centers used for
// drawing a trail behind each object
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points keyed by object ID
	history map[string]*Track
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size is the maximum number
// of most recent points kept per object
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[string]*Track),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[string]*Track)
}

// Add records the center of a tracked box for the object
func (t *Trail) Add(id string, box Rect) {
	t.Lock()
	defer t.Unlock()

	track, exists := t.history[id]

	if !exists {
		track = &Track{}
		t.history[id] = track
	}

	cx, cy := box.Center()

	track.points = append(track.points, Point{
		X: int(cx),
		Y: int(cy),
	})

	// check if history is exceeded and drop oldest point
	if len(track.points) > t.size {
		track.points = track.points[1:]
	}
}

// Remove drops the history of an object
func (t *Trail) Remove(id string) {
	t.Lock()
	defer t.Unlock()

	delete(t.history, id)
}

// GetPoints returns a copy of the point history for an object
func (t *Trail) GetPoints(id string) []Point {
	t.Lock()
	defer t.Unlock()

	if track, exists := t.history[id]; exists {
		return append([]Point(nil), track.points...)
	}

	// no history yet
	return nil
}

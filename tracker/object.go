package tracker

import "github.com/google/uuid"

// Object identifies the target followed by a tracker session
type Object struct {
	// ID is a unique ID for the tracked object
	ID string
	// ClassID is an optional class label index of the object
	ClassID int
	// ClassName is an optional human readable class label
	ClassName string
}

// NewObject is a constructor function for the Object struct that assigns a
// random ID
func NewObject(classID int, className string) Object {
	return Object{
		ID:        uuid.NewString(),
		ClassID:   classID,
		ClassName: className,
	}
}

// withID returns the object with a random ID assigned if it has none
func (o Object) withID() Object {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return o
}

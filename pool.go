package siamtrack

import (
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Get once the pool has been closed
var ErrPoolClosed = errors.New("pool closed")

// Closer is implemented by pooled resources
type Closer interface {
	Close() error
}

// Pool is a simple pool of resources, typically feature transforms, each
// created with its models pinned to a different NPU core so tracker sessions
// can run in parallel
type Pool[T Closer] struct {
	// pool of resources
	items chan T
	// size of pool
	size   int
	closed bool
	mu     sync.Mutex
}

// NewPool creates a pool of size resources.  The create function is called
// once per resource with the NPU core to use, cycling through cores
func NewPool[T Closer](size int, cores []CoreMask, create func(core CoreMask) (T, error)) (*Pool[T], error) {

	if size <= 0 {
		return nil, errors.New("pool size must be positive")
	}

	if len(cores) == 0 {
		cores = []CoreMask{NPUCoreAuto}
	}

	p := &Pool[T]{
		items: make(chan T, size),
		size:  size,
	}

	for i := 0; i < size; i++ {
		item, err := create(cores[i%len(cores)])

		if err != nil {
			// close any instances that may have been created before receiving
			// the error
			p.Close()
			return nil, err
		}

		// attach to pool
		p.Return(item)
	}

	return p, nil
}

// Get a resource from the pool, blocking until one is available.  Once the
// pool is closed ErrPoolClosed is returned
func (p *Pool[T]) Get() (T, error) {

	item, ok := <-p.items

	if !ok {
		var zero T
		return zero, ErrPoolClosed
	}

	return item, nil
}

// Return a resource to the pool.  Resources returned after the pool is
// closed are closed
func (p *Pool[T]) Return(item T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = item.Close()
		return
	}

	select {
	case p.items <- item:
	default:
		// pool is full
		_ = item.Close()
	}
}

// Size returns the number of resources the pool was created with
func (p *Pool[T]) Size() int {
	return p.size
}

// Close the pool and all resources in it
func (p *Pool[T]) Close() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return
	}

	p.closed = true
	close(p.items)
	p.mu.Unlock()

	for next := range p.items {
		_ = next.Close()
	}
}

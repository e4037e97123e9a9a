// Package boundedwaitgroup provides a sync.WaitGroup that blocks Add
// once a fixed number of goroutines are outstanding, so a caller can
// fan out work without spawning unbounded goroutines.
package boundedwaitgroup

import "sync"

// BoundedWaitGroup behaves like sync.WaitGroup, except Add blocks once
// capacity outstanding Add calls have not yet been matched by Done.
type BoundedWaitGroup struct {
	wg sync.WaitGroup
	ch chan struct{}
}

// New returns a BoundedWaitGroup that allows at most capacity
// outstanding goroutines. It panics if capacity is 0.
func New(capacity uint) BoundedWaitGroup {
	if capacity == 0 {
		panic("boundedwaitgroup: capacity must be greater than zero")
	}
	return BoundedWaitGroup{ch: make(chan struct{}, capacity)}
}

// Add reserves delta slots, blocking until capacity is available.
func (bg *BoundedWaitGroup) Add(delta int) {
	for i := 0; i < delta; i++ {
		bg.ch <- struct{}{}
	}
	bg.wg.Add(delta)
}

// Done releases one reserved slot.
func (bg *BoundedWaitGroup) Done() {
	<-bg.ch
	bg.wg.Done()
}

// Wait blocks until every reserved slot has been released.
func (bg *BoundedWaitGroup) Wait() {
	bg.wg.Wait()
}

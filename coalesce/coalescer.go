package coalesce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when none is configured.
const DefaultDelay = 600 * time.Millisecond

// Coalescer debounces writes to a single value, committing at most once
// per quiet window. The final value of a burst is always the one
// committed, never an intermediate one; a value equal to the last commit
// is not re-committed.
//
// The commit function runs outside the coalescer's lock, in the timer
// goroutine or the Flush/Close caller's goroutine.
type Coalescer[T comparable] struct {
	delay  time.Duration
	commit func(T)

	mu         sync.Mutex
	timer      *time.Timer
	pending    T
	hasPending bool
	last       T
	hasLast    bool
	closed     bool
}

// New creates a Coalescer that invokes commit after writes have been
// quiet for delay. A non-positive delay uses DefaultDelay.
func New[T comparable](delay time.Duration, commit func(T)) *Coalescer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Coalescer[T]{delay: delay, commit: commit}
}

// Write records a new value and restarts the quiet-period timer. The
// value is observable through Pending immediately, so the UI reflects
// every keystroke.
func (c *Coalescer[T]) Write(value T) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = value
	c.hasPending = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, c.fire)
	c.mu.Unlock()
}

// Flush cancels the timer and commits the pending value immediately if it
// differs from the last committed one. Used on blur and explicit confirm.
func (c *Coalescer[T]) Flush() {
	value, ok := c.take()
	if ok {
		c.commit(value)
	}
}

// Close flushes any pending value and stops the coalescer. Further writes
// are ignored. Idempotent.
func (c *Coalescer[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	value, ok := c.take()
	if ok {
		c.commit(value)
	}
}

// Pending returns the value written since the last commit, if any.
func (c *Coalescer[T]) Pending() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, c.hasPending
}

// Last returns the most recently committed value, if any commit happened.
func (c *Coalescer[T]) Last() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// fire runs when the quiet period elapses.
func (c *Coalescer[T]) fire() {
	value, ok := c.take()
	if ok {
		c.commit(value)
	}
}

// take claims the pending value for commit, deduplicating against the
// last committed value. It stops any armed timer.
func (c *Coalescer[T]) take() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	var zero T
	if !c.hasPending {
		return zero, false
	}
	value := c.pending
	c.pending = zero
	c.hasPending = false

	if c.hasLast && value == c.last {
		return zero, false
	}
	c.last = value
	c.hasLast = true
	return value, true
}

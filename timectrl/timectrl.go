package timectrl

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrClockRewind is returned when asked to move the clock backwards.
var ErrClockRewind = errors.New("clock rewind")

// SimClock is a read-only view of simulation time. The simulator reads the
// current time through it while the event queue owns the Clock that moves.
type SimClock interface {
	// Now returns the current simulation time in simulation units.
	Now() float64
}

// Clock is a discrete, monotonic simulation clock. It only moves when the
// event loop advances it to the time of the next bag; there is no wall-clock
// coupling.
type Clock struct {
	mu      sync.RWMutex
	start   float64
	current float64

	listeners []func(float64)
}

// NewClock constructs a clock positioned at start.
func NewClock(start float64) *Clock {
	return &Clock{start: start, current: start}
}

// Now returns the current simulation time. Implements SimClock.
func (c *Clock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Start returns the time the clock was created at.
func (c *Clock) Start() float64 { return c.start }

// AdvanceTo moves the clock forward to t. Listeners are invoked only when
// time actually changes.
func (c *Clock) AdvanceTo(t float64) error {
	c.mu.Lock()
	if t < c.current {
		now := c.current
		c.mu.Unlock()
		return fmt.Errorf("%w: %g < %g", ErrClockRewind, t, now)
	}
	moved := t > c.current
	c.current = t
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	if moved {
		for _, fn := range listeners {
			fn(t)
		}
	}
	return nil
}

// AddListener registers a callback invoked every time the clock advances.
func (c *Clock) AddListener(fn func(float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

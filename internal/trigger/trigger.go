// SPDX-License-Identifier: MIT

// Package trigger holds small stateful detectors that turn a stream of
// sampled values into discrete events. None of them are safe for concurrent
// use; each belongs to the loop that steps it.
package trigger

import "time"

// Change fires whenever the sampled value differs from the previous sample.
// The first sample never fires unless Prime was called.
type Change[T comparable] struct {
	last   T
	seen   bool
	primed bool
}

// Prime forces the next Step to fire regardless of its value. The analyzer
// uses this so that its first poll always pushes a band layout.
func (c *Change[T]) Prime() {
	c.primed = true
}

// Step records v and reports whether it differs from the previous value.
func (c *Change[T]) Step(v T) bool {
	fired := c.primed || (c.seen && v != c.last)
	c.last = v
	c.seen = true
	c.primed = false
	return fired
}

// Last returns the most recent sample.
func (c *Change[T]) Last() (T, bool) {
	return c.last, c.seen
}

// Edge fires each time a signal that normally increases drops below its
// previous value, i.e. when a phase ramp wraps around.
type Edge struct {
	last float64
	seen bool
}

// Step records v and reports whether it is lower than the previous value.
func (e *Edge) Step(v float64) bool {
	fired := e.seen && v < e.last
	e.last = v
	e.seen = true
	return fired
}

// Periodic fires at most once per interval.
type Periodic struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewPeriodic returns a Periodic whose interval starts now.
func NewPeriodic(interval time.Duration) *Periodic {
	return newPeriodic(interval, time.Now)
}

func newPeriodic(interval time.Duration, now func() time.Time) *Periodic {
	return &Periodic{interval: interval, last: now(), now: now}
}

// Step reports whether more than interval has elapsed since the last firing.
func (p *Periodic) Step() bool {
	t := p.now()
	if t.Sub(p.last) > p.interval {
		p.last = t
		return true
	}
	return false
}

// Reset restarts the interval from now.
func (p *Periodic) Reset() {
	p.last = p.now()
}

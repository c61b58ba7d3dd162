// SPDX-License-Identifier: MIT
package trigger

import (
	"testing"
	"time"
)

type tuple struct{ a, b float64 }

func TestChange(t *testing.T) {
	var c Change[tuple]

	steps := []struct {
		in   tuple
		want bool
	}{
		{tuple{1, 2}, false}, // first sample
		{tuple{1, 2}, false},
		{tuple{1, 3}, true},
		{tuple{1, 3}, false},
		{tuple{0, 0}, true},
	}

	for i, s := range steps {
		if got := c.Step(s.in); got != s.want {
			t.Errorf("step %d: Step(%v) = %v, want %v", i, s.in, got, s.want)
		}
	}

	last, ok := c.Last()
	if !ok || last != (tuple{0, 0}) {
		t.Errorf("Last() = %v, %v", last, ok)
	}
}

func TestChangePrime(t *testing.T) {
	var c Change[int]
	c.Prime()

	if !c.Step(5) {
		t.Error("primed first Step should fire")
	}
	if c.Step(5) {
		t.Error("prime must only apply once")
	}

	c.Prime()
	if !c.Step(5) {
		t.Error("re-primed Step should fire for an unchanged value")
	}
}

func TestEdge(t *testing.T) {
	var e Edge
	ramp := []float64{0.1, 0.5, 0.9, 0.05, 0.6, 0.6, 0.2}
	want := []bool{false, false, false, true, false, false, true}

	for i, v := range ramp {
		if got := e.Step(v); got != want[i] {
			t.Errorf("step %d: Step(%v) = %v, want %v", i, v, got, want[i])
		}
	}
}

func TestPeriodic(t *testing.T) {
	now := time.Unix(0, 0)
	p := newPeriodic(time.Second, func() time.Time { return now })

	if p.Step() {
		t.Error("should not fire before the interval elapses")
	}

	now = now.Add(1500 * time.Millisecond)
	if !p.Step() {
		t.Error("should fire after the interval elapses")
	}
	if p.Step() {
		t.Error("should not fire twice for the same interval")
	}

	now = now.Add(900 * time.Millisecond)
	p.Reset()
	now = now.Add(900 * time.Millisecond)
	if p.Step() {
		t.Error("Reset should restart the interval")
	}
}

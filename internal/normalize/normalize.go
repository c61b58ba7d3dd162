// SPDX-License-Identifier: MIT

/*
Package normalize maps raw dB values onto a roughly unit range around a
slowly adapting average.

Each Update blends the raw vector into the running average with factor
alpha, except where that would leave the output clipping above 1: there the
average jumps straight to the value that places raw exactly at 1, so loud
onsets are absorbed immediately while quiet passages fade in slowly.

	natural   = raw*alpha + avg*(1-alpha)
	antiClip  = raw - (1-baseline)*range
	avg'      = antiClip  if (raw-natural)/range + baseline > 1
	          = natural   otherwise
	normalized = (raw - avg) / range + baseline

The normalized output uses the updated average, so it never exceeds 1 on
the step that detects clipping. Updates with any non-finite element are dropped whole.

A Normalizer has one writer. Snapshot readers never block it: every Update
publishes a new immutable State through an atomic pointer.
*/
package normalize

import (
	"math"
	"sync/atomic"
	"time"
)

// State is one published snapshot. Its slices are never modified after
// publication.
type State struct {
	Avg        []float64
	Raw        []float64
	Normalized []float64
	Range      float64
	Baseline   float64
	Alpha      float64
}

// Normalizer holds the running state for a fixed-size vector.
type Normalizer struct {
	size  int
	state atomic.Pointer[State]
}

// New returns a normalizer for vectors of size elements with every element
// of avg, raw and normalized set to initial.
func New(size int, initial float64) *Normalizer {
	n := &Normalizer{size: size}
	n.state.Store(&State{
		Avg:        fill(size, initial),
		Raw:        fill(size, initial),
		Normalized: fill(size, initial),
	})
	return n
}

// Size returns the vector length.
func (n *Normalizer) Size() int { return n.size }

// Update folds raw into the state. It returns false and leaves the state
// untouched when raw has the wrong length or contains a non-finite value,
// or when rng, baseline or alpha are unusable.
func (n *Normalizer) Update(raw []float64, rng, baseline, alpha float64) bool {
	if len(raw) != n.size {
		return false
	}
	if !(rng > 0) || math.IsInf(rng, 0) || !finite(baseline) || !finite(alpha) {
		return false
	}
	for _, v := range raw {
		if !finite(v) {
			return false
		}
	}

	prev := n.state.Load()
	next := &State{
		Avg:        make([]float64, n.size),
		Raw:        make([]float64, n.size),
		Normalized: make([]float64, n.size),
		Range:      rng,
		Baseline:   baseline,
		Alpha:      alpha,
	}
	copy(next.Raw, raw)

	for i, r := range raw {
		avg := prev.Avg[i]
		natural := r*alpha + avg*(1-alpha)
		if (r-natural)/rng+baseline > 1 {
			next.Avg[i] = r - (1-baseline)*rng
		} else {
			next.Avg[i] = natural
		}
		next.Normalized[i] = (r-next.Avg[i])/rng + baseline
	}

	n.state.Store(next)
	return true
}

// State returns the latest snapshot.
func (n *Normalizer) State() *State { return n.state.Load() }

// Normalized returns the latest normalized vector.
func (n *Normalizer) Normalized() []float64 { return n.state.Load().Normalized }

// Average returns the latest running average.
func (n *Normalizer) Average() []float64 { return n.state.Load().Avg }

// Raw returns the last accepted raw vector.
func (n *Normalizer) Raw() []float64 { return n.state.Load().Raw }

// Alpha returns the smoothing factor for an exponential average with the
// given time constant sampled every step.
func Alpha(timeConstant, step time.Duration) float64 {
	dt := step.Seconds()
	tc := timeConstant.Seconds()
	if dt+tc <= 0 {
		return 1
	}
	return dt / (dt + tc)
}

func fill(size int, v float64) []float64 {
	out := make([]float64, size)
	for i := range out {
		out[i] = v
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

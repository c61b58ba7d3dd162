// SPDX-License-Identifier: MIT

/*
Package beat tracks musical time from a tempo, a time signature and manual
tap-tempo input. It has no audio input; its outputs are continuous phases:

	BeatRaw      [0, 1)  position within the current beat
	DownbeatRaw  [0, 1)  position within the current measure
	BeatCount    [0, ts) fractional beat index within the measure

Taps closer than two seconds apart form a session: the tempo becomes the
mean interval of the session and the first tap of the session marks the
downbeat. Each tap also marks a beat. The downbeat is re-quantized to the
nearest beat every step so it stays on the beat grid when the tempo moves.

Known limitation: when a tap lands far from the session's downbeat mark,
the rounding to the nearest beat can pick a different beat than intended
and the measure phase jumps. There is no correction for this.
*/
package beat

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	applog "lumen/internal/log"
	"lumen/internal/params"
	"lumen/internal/trigger"
)

// SessionGap is the longest interval between taps of one session.
const SessionGap = 2 * time.Second

// Clock supplies the tracker's notion of now.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock (with its monotonic reading).
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Phase is one published tracker output.
type Phase struct {
	BeatRaw       float64
	DownbeatRaw   float64
	BeatCount     float64
	BPM           float64
	TimeSignature int
	Beats         uint64 // beat boundaries crossed since the tracker started
}

// Tracker is stepped by one goroutine; Phase may be read from any.
type Tracker struct {
	store *params.Store
	clock Clock

	beatTimestamp       time.Time
	beatPeriod          float64 // seconds
	downbeatTimestamp   time.Time
	downbeatUnquantized time.Time
	tapIntervals        []float64
	tapped              bool

	edge  trigger.Edge
	beats uint64
	phase atomic.Pointer[Phase]
}

// New returns a tracker whose beat and downbeat start now.
func New(store *params.Store, clock Clock) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	now := clock.Now()
	t := &Tracker{
		store:               store,
		clock:               clock,
		beatTimestamp:       now,
		beatPeriod:          0.5,
		downbeatTimestamp:   now,
		downbeatUnquantized: now,
	}
	t.phase.Store(&Phase{BPM: store.Tempo().BPM, TimeSignature: store.Tempo().TimeSignature})
	return t
}

// Step consumes a pending tap, then recomputes the phases for now.
func (t *Tracker) Step() {
	now := t.clock.Now()

	if t.store.ReadAndClear(params.TriggerTap) {
		t.tap(now)
	}

	tempo := t.store.Tempo()
	t.beatPeriod = 60 / tempo.BPM
	t.quantizeDownbeat()

	beatRaw := frac(now.Sub(t.beatTimestamp).Seconds() / t.beatPeriod)
	measure := t.beatPeriod * float64(tempo.TimeSignature)
	downbeatRaw := frac(now.Sub(t.downbeatTimestamp).Seconds() / measure)

	if t.edge.Step(beatRaw) {
		t.beats++
	}

	t.phase.Store(&Phase{
		BeatRaw:       beatRaw,
		DownbeatRaw:   downbeatRaw,
		BeatCount:     downbeatRaw * float64(tempo.TimeSignature),
		BPM:           tempo.BPM,
		TimeSignature: tempo.TimeSignature,
		Beats:         t.beats,
	})
}

func (t *Tracker) tap(now time.Time) {
	interval := now.Sub(t.beatTimestamp)
	t.beatTimestamp = now

	if !t.tapped || interval > SessionGap {
		t.tapped = true
		t.downbeatUnquantized = now
		t.tapIntervals = t.tapIntervals[:0]
		applog.Debugf("Beat: new tap session")
		return
	}

	t.tapIntervals = append(t.tapIntervals, interval.Seconds())
	var sum float64
	for _, v := range t.tapIntervals {
		sum += v
	}
	bpm, err := t.store.SetBPM(60 / (sum / float64(len(t.tapIntervals))))
	if err != nil {
		applog.Warnf("Beat: %v", err)
		return
	}
	applog.Debugf("Beat: tap %d, %.1f BPM", len(t.tapIntervals)+1, bpm)
}

// quantizeDownbeat moves the downbeat to the beat nearest the unquantized
// downbeat mark. Ties round to even, so the result depends only on the
// current timestamps and period.
func (t *Tracker) quantizeDownbeat() {
	beats := t.downbeatUnquantized.Sub(t.beatTimestamp).Seconds() / t.beatPeriod
	offset := math.RoundToEven(beats) * t.beatPeriod
	t.downbeatTimestamp = t.beatTimestamp.Add(time.Duration(offset * float64(time.Second)))
}

// Phase returns the latest published phases.
func (t *Tracker) Phase() Phase {
	return *t.phase.Load()
}

// Beats returns the number of beat boundaries crossed so far.
func (t *Tracker) Beats() uint64 {
	return t.phase.Load().Beats
}

// Run steps the tracker every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Step()
		case <-ctx.Done():
			return
		}
	}
}

func frac(x float64) float64 {
	return x - math.Floor(x)
}

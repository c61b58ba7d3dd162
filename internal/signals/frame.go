// SPDX-License-Identifier: MIT

// Package signals assembles the consumer-facing view of the system: the
// latest normalized audio signals together with the beat phases.
package signals

import (
	"sync/atomic"
	"time"

	"lumen/internal/analyzer"
	"lumen/internal/beat"
)

// Frame is one sample of every published signal.
type Frame struct {
	Seq           uint32    `json:"seq"`
	Timestamp     int64     `json:"ts"`
	SPL           float64   `json:"spl"`
	RawSPL        float64   `json:"spl_raw"`
	Spec3         []float64 `json:"spec3"`
	Spec4         []float64 `json:"spec4"`
	Spec12        []float64 `json:"spec12"`
	BPM           float64   `json:"bpm"`
	TimeSignature int       `json:"time_signature"`
	BeatRaw       float64   `json:"beat_raw"`
	DownbeatRaw   float64   `json:"downbeat_raw"`
	BeatCount     float64   `json:"beat_count"`
	Beats         uint64    `json:"beats"`
}

// AudioSource provides normalized audio signals.
type AudioSource interface {
	Snapshot() analyzer.Snapshot
	RawSPL() float64
}

// TempoSource provides beat phases.
type TempoSource interface {
	Phase() beat.Phase
}

// Collector builds frames from its sources. Collect may be called from
// several goroutines; each call gets its own sequence number.
type Collector struct {
	audio AudioSource
	tempo TempoSource
	seq   atomic.Uint32
	now   func() time.Time
}

func NewCollector(audio AudioSource, tempo TempoSource) *Collector {
	return &Collector{audio: audio, tempo: tempo, now: time.Now}
}

// Collect reads the current snapshots. A nil source leaves its fields zero.
func (c *Collector) Collect() Frame {
	f := Frame{
		Seq:       c.seq.Add(1),
		Timestamp: c.now().UnixNano(),
	}

	if c.audio != nil {
		s := c.audio.Snapshot()
		f.SPL = s.SPL
		f.RawSPL = c.audio.RawSPL()
		f.Spec3 = s.Spec3
		f.Spec4 = s.Spec4
		f.Spec12 = s.Spec12
	}

	if c.tempo != nil {
		p := c.tempo.Phase()
		f.BPM = p.BPM
		f.TimeSignature = p.TimeSignature
		f.BeatRaw = p.BeatRaw
		f.DownbeatRaw = p.DownbeatRaw
		f.BeatCount = p.BeatCount
		f.Beats = p.Beats
	}

	return f
}

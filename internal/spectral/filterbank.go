// SPDX-License-Identifier: MIT
package spectral

import (
	"math"
	"sort"
)

// Filterbank averages spectrogram magnitudes over rectangular bands. A bin
// belongs to band i when lo <= f < hi. A band too narrow to hold any bin
// takes the bin nearest its centre instead, so every band reads at least
// one bin.
type Filterbank struct {
	edges   BandEdges
	ranges  [][2]int // half-open bin index range per band
	widened int
}

// NewFilterbank maps edges onto bins with the given centre frequencies,
// which must be ascending and non-empty. Edges must already be valid.
func NewFilterbank(edges BandEdges, freqs []float64) *Filterbank {
	fb := &Filterbank{
		edges:  edges,
		ranges: make([][2]int, edges.Bands()),
	}
	for band := range fb.ranges {
		lo, hi := edges.Bounds(band)
		start := sort.SearchFloat64s(freqs, lo)
		end := sort.SearchFloat64s(freqs, hi)
		if start >= end {
			k := nearestBin(freqs, (lo+hi)/2)
			start, end = k, k+1
			fb.widened++
		}
		fb.ranges[band] = [2]int{start, end}
	}
	return fb
}

// nearestBin returns the index of the bin closest to f.
func nearestBin(freqs []float64, f float64) int {
	i := sort.SearchFloat64s(freqs, f)
	switch {
	case i == len(freqs):
		return len(freqs) - 1
	case i > 0 && f-freqs[i-1] < freqs[i]-f:
		return i - 1
	}
	return i
}

// Bands returns the number of bands.
func (f *Filterbank) Bands() int { return len(f.ranges) }

// Edges returns the edges the filterbank was built from.
func (f *Filterbank) Edges() BandEdges { return f.edges }

// Widened returns how many bands held no bin of their own and were mapped
// to their nearest bin.
func (f *Filterbank) Widened() int { return f.widened }

// Apply writes the mean magnitude of every band into out, which must hold
// Bands() values.
func (f *Filterbank) Apply(mag []float64, out []float64) {
	for band, r := range f.ranges {
		bins := mag[min(r[0], len(mag)):min(r[1], len(mag))]
		if len(bins) == 0 {
			out[band] = 0
			continue
		}
		var sum float64
		for _, m := range bins {
			sum += m
		}
		out[band] = sum / float64(len(bins))
	}
}

// ToDB converts magnitudes to decibels in place, clamped below at floor so
// that silent bands stay finite.
func ToDB(values []float64, floor float64) {
	for i, v := range values {
		values[i] = math.Max(20*math.Log10(v), floor)
	}
}

// MaxInto raises every element of dst to at least the matching element of
// src.
func MaxInto(dst, src []float64) {
	for i := range dst {
		if src[i] > dst[i] {
			dst[i] = src[i]
		}
	}
}

// SPDX-License-Identifier: MIT
package spectral

import (
	"errors"
	"fmt"
	"math"

	"lumen/internal/params"
)

// ErrInvalidEdges is returned for band edges that cannot carve a spectrum:
// non-finite values, a negative minimum, or crossovers that are not strictly
// increasing between Min and Max.
var ErrInvalidEdges = errors.New("invalid band edges")

// BandEdges describes len(Crossovers)+1 adjacent bands covering [Min, Max).
type BandEdges struct {
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Crossovers []float64 `json:"crossovers"`
}

// Bands returns the number of bands described by the edges.
func (e BandEdges) Bands() int {
	return len(e.Crossovers) + 1
}

// Bounds returns the lower and upper frequency of band i.
func (e BandEdges) Bounds(i int) (lo, hi float64) {
	lo, hi = e.Min, e.Max
	if i > 0 {
		lo = e.Crossovers[i-1]
	}
	if i < len(e.Crossovers) {
		hi = e.Crossovers[i]
	}
	return lo, hi
}

// Validate reports whether the edges are usable.
func (e BandEdges) Validate() error {
	if !finite(e.Min) || !finite(e.Max) {
		return fmt.Errorf("%w: bounds [%v, %v]", ErrInvalidEdges, e.Min, e.Max)
	}
	if e.Min < 0 {
		return fmt.Errorf("%w: negative minimum %v", ErrInvalidEdges, e.Min)
	}
	prev := e.Min
	for _, c := range e.Crossovers {
		if !finite(c) || c <= prev {
			return fmt.Errorf("%w: crossover %v not above %v", ErrInvalidEdges, c, prev)
		}
		prev = c
	}
	if e.Max <= prev {
		return fmt.Errorf("%w: maximum %v not above %v", ErrInvalidEdges, e.Max, prev)
	}
	return nil
}

// Equal reports whether both edges describe the same bands.
func (e BandEdges) Equal(o BandEdges) bool {
	if e.Min != o.Min || e.Max != o.Max || len(e.Crossovers) != len(o.Crossovers) {
		return false
	}
	for i := range e.Crossovers {
		if e.Crossovers[i] != o.Crossovers[i] {
			return false
		}
	}
	return true
}

// Layout is the set of band edges the capture stage aggregates into.
type Layout struct {
	Spec3  BandEdges `json:"spec3"`
	Spec4  BandEdges `json:"spec4"`
	Spec12 BandEdges `json:"spec12"`
}

// Validate checks every band set and their sizes.
func (l Layout) Validate() error {
	for _, c := range []struct {
		name  string
		edges BandEdges
		bands int
	}{
		{"spec3", l.Spec3, 3},
		{"spec4", l.Spec4, 4},
		{"spec12", l.Spec12, 12},
	} {
		if c.edges.Bands() != c.bands {
			return fmt.Errorf("%s: %w: %d bands, want %d", c.name, ErrInvalidEdges, c.edges.Bands(), c.bands)
		}
		if err := c.edges.Validate(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// NewLayout derives the three band sets from the five spectral parameters.
//
//	spec3   X0Min | X1 | X3 | X9Max
//	spec4   X0Min | X1 | X2 | X3 | X9Max
//	spec12  each of the four segments split geometrically into three
//
// The result is validated; an error means the parameters are out of order.
func NewLayout(p params.Spectral) (Layout, error) {
	if !(p.X0Min > 0) {
		return Layout{}, fmt.Errorf("spec12: %w: geometric spacing needs a positive minimum, got %v", ErrInvalidEdges, p.X0Min)
	}

	var spec12 []float64
	spec12 = append(spec12, geomspace(p.X0Min, p.X1, 4)[1:]...)
	spec12 = append(spec12, geomspace(p.X1, p.X2, 4)[1:]...)
	spec12 = append(spec12, geomspace(p.X2, p.X3, 4)[1:]...)
	spec12 = append(spec12, geomspace(p.X3, p.X9Max, 4)[1:3]...)

	l := Layout{
		Spec3:  BandEdges{Min: p.X0Min, Max: p.X9Max, Crossovers: []float64{p.X1, p.X3}},
		Spec4:  BandEdges{Min: p.X0Min, Max: p.X9Max, Crossovers: []float64{p.X1, p.X2, p.X3}},
		Spec12: BandEdges{Min: p.X0Min, Max: p.X9Max, Crossovers: spec12},
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// geomspace returns n points from start to stop inclusive, evenly spaced on
// a log scale. Both ends must be positive.
func geomspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	ls, le := math.Log(start), math.Log(stop)
	for i := range n {
		out[i] = math.Exp(ls + (le-ls)*float64(i)/float64(n-1))
	}
	out[0], out[n-1] = start, stop
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

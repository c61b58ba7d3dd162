// SPDX-License-Identifier: MIT

/*
Package params is the live parameter registry shared by the analyzer, the
beat tracker and whatever control surface is attached (TUI, websocket).

Every parameter is declared once with its bounds and default. Values are
clamped into bounds on write; non-finite values are rejected. Consumers read
typed groups (Spectral, Normalization, Tempo) so that change detection is a
plain struct comparison rather than a lookup by name.

Triggers are one-shot boolean flags. Activate sets the flag and the first
ReadAndClear after it returns true; every later call returns false until the
flag is activated again.
*/
package params

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// Parameter names.
const (
	TimeConstant  = "timeconstant"
	DBRange       = "db_range"
	DBBaseline    = "db_baseline"
	SpecX0Min     = "spec_x0min"
	SpecX1        = "spec_x1"
	SpecX2        = "spec_x2"
	SpecX3        = "spec_x3"
	SpecX9Max     = "spec_x9max"
	BPM           = "bpm"
	TimeSignature = "time_signature"
)

// Trigger names.
const (
	TriggerTap = "tap"
)

var (
	ErrUnknownParam   = errors.New("unknown parameter")
	ErrUnknownTrigger = errors.New("unknown trigger")
	ErrInvalidValue   = errors.New("invalid parameter value")
)

// Kind distinguishes float from integer parameters.
type Kind string

const (
	KindFloat Kind = "float"
	KindInt   Kind = "int"
)

// Param declares a parameter: its bounds and default. Integer parameters
// store whole numbers but share the float64 representation.
type Param struct {
	Name    string  `json:"name" yaml:"name"`
	Kind    Kind    `json:"type" yaml:"type"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Default float64 `json:"default" yaml:"default"`
}

// Clamp returns v limited to the parameter bounds, rounded for integer
// parameters.
func (p Param) Clamp(v float64) float64 {
	if p.Kind == KindInt {
		v = math.Round(v)
	}
	return math.Min(p.Max, math.Max(p.Min, v))
}

// Declared returns the declaration of every parameter in a stable order.
func Declared() []Param {
	return []Param{
		{TimeConstant, KindFloat, 0.5, 30, 10},
		{DBRange, KindFloat, 0.5, 36, 18},
		{DBBaseline, KindFloat, -1, 2, 0.5},
		{SpecX0Min, KindFloat, 0, 300, 30},
		{SpecX1, KindFloat, 20, 500, 250},
		{SpecX2, KindFloat, 200, 5000, 2000},
		{SpecX3, KindFloat, 20, 10000, 6000},
		{SpecX9Max, KindFloat, 10000, 30000, 20000},
		{BPM, KindFloat, 45, 220, 60},
		{TimeSignature, KindInt, 1, 8, 4},
	}
}

// Spectral is the five-tuple that carves the band spectra. It is comparable
// so the analyzer can detect changes with ==.
type Spectral struct {
	X0Min float64
	X1    float64
	X2    float64
	X3    float64
	X9Max float64
}

// Normalization groups the inputs of every normalizer update.
type Normalization struct {
	TimeConstant float64 // seconds
	Range        float64 // dB mapped onto one unit of normalized output
	Baseline     float64 // normalized value when raw equals the running average
}

// Tempo groups the beat tracker inputs.
type Tempo struct {
	BPM           float64
	TimeSignature int
}

// Value is a parameter declaration together with its current value.
type Value struct {
	Param
	Value float64 `json:"value" yaml:"value"`
}

// Store holds the current value of every declared parameter and the
// trigger flags. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	decl     map[string]Param
	values   map[string]float64
	triggers map[string]*atomic.Bool
}

// NewStore returns a store with every parameter at its default.
func NewStore() *Store {
	s := &Store{
		decl:   make(map[string]Param),
		values: make(map[string]float64),
		triggers: map[string]*atomic.Bool{
			TriggerTap: new(atomic.Bool),
		},
	}
	for _, p := range Declared() {
		s.decl[p.Name] = p
		s.values[p.Name] = p.Default
	}
	return s
}

// Get returns the current value of name.
func (s *Store) Get(name string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return v, nil
}

// Set writes name, clamped into its bounds, and returns the stored value.
func (s *Store) Set(name string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%v", ErrInvalidValue, name, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.decl[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	v = p.Clamp(v)
	s.values[name] = v
	return v, nil
}

// Apply sets several parameters at once. It stops at the first error; the
// values written before it are kept.
func (s *Store) Apply(values map[string]float64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := s.Set(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// Schema returns every parameter with its current value, in declaration
// order.
func (s *Store) Schema() []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	decl := Declared()
	out := make([]Value, len(decl))
	for i, p := range decl {
		out[i] = Value{Param: p, Value: s.values[p.Name]}
	}
	return out
}

// Spectral returns the current band-edge parameters.
func (s *Store) Spectral() Spectral {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Spectral{
		X0Min: s.values[SpecX0Min],
		X1:    s.values[SpecX1],
		X2:    s.values[SpecX2],
		X3:    s.values[SpecX3],
		X9Max: s.values[SpecX9Max],
	}
}

// Normalization returns the current normalizer parameters.
func (s *Store) Normalization() Normalization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Normalization{
		TimeConstant: s.values[TimeConstant],
		Range:        s.values[DBRange],
		Baseline:     s.values[DBBaseline],
	}
}

// Tempo returns the current tempo parameters.
func (s *Store) Tempo() Tempo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Tempo{
		BPM:           s.values[BPM],
		TimeSignature: int(s.values[TimeSignature]),
	}
}

// SetBPM is shorthand for Set(BPM, v).
func (s *Store) SetBPM(v float64) (float64, error) {
	return s.Set(BPM, v)
}

// Activate raises a trigger flag.
func (s *Store) Activate(name string) error {
	t, ok := s.triggers[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
	}
	t.Store(true)
	return nil
}

// ReadAndClear reports whether the trigger was raised since the last call
// and lowers it. Unknown triggers are never raised.
func (s *Store) ReadAndClear(name string) bool {
	t, ok := s.triggers[name]
	if !ok {
		return false
	}
	return t.Swap(false)
}

// Triggers returns the trigger names.
func (s *Store) Triggers() []string {
	names := make([]string, 0, len(s.triggers))
	for name := range s.triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

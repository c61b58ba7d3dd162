// SPDX-License-Identifier: MIT

/*
Package capture runs the spectral capture stage: it reads audio hop by hop,
keeps a sliding analysis frame, and for every block computes the sound
pressure level and the 3, 4 and 12 band spectra in dB. Results go to the
analyzer over a featurechan endpoint; band layouts come back the same way.

The stage runs isolated from the analyzer, either in a child process
(ProcessSpawner) or on a goroutine locked to its own OS thread
(GoroutineSpawner). In both cases the endpoint is the only thing the two
sides share.
*/
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"lumen/internal/audio"
	"lumen/internal/featurechan"
	applog "lumen/internal/log"
	"lumen/internal/spectral"
	"lumen/internal/trigger"
)

// How often the stage logs its queue statistics.
const statsInterval = 10 * time.Second

// StageEnd is the capture side of the feature channel.
type StageEnd = featurechan.End[featurechan.Features, featurechan.Configure]

// Config shapes the analysis.
type Config struct {
	SampleRate float64 // Hz
	FPS        float64 // analysis frames per second; the hop is SampleRate/FPS
	FrameSize  int     // spectrogram frame length, a power of 2
	BlockHops  int     // hops reduced into one Features message
	SPLFloor   float64 // dB
}

// DefaultConfig analyses 2048-sample frames at 60 frames per second.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		FPS:        60,
		FrameSize:  2048,
		BlockHops:  1,
		SPLFloor:   -100,
	}
}

// Hop returns the number of samples between frames.
func (c Config) Hop() int {
	return int(math.Round(c.SampleRate / c.FPS))
}

// FramePeriod returns the audio time covered by one Features message.
func (c Config) FramePeriod() time.Duration {
	return time.Duration(float64(c.Hop()*c.BlockHops) / c.SampleRate * float64(time.Second))
}

// Validate checks that the configuration can run.
func (c Config) Validate() error {
	switch {
	case !(c.SampleRate > 0):
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	case !(c.FPS > 0) || c.Hop() < 1:
		return fmt.Errorf("fps %v gives no samples per hop", c.FPS)
	case c.BlockHops < 1:
		return fmt.Errorf("block hops must be at least 1, got %d", c.BlockHops)
	}
	return nil
}

// Stage is the capture loop. It is used by a single goroutine.
type Stage struct {
	cfg      Config
	source   Source
	recorder *audio.Recorder
	now      func() time.Time
	stats    *trigger.Periodic

	spec   *spectral.Spectrogram
	banks  [3]*spectral.Filterbank
	frame  []float32 // sliding analysis window
	hop    []float32
	bands  [3][]float64 // per-frame band values
	blocks [3][]float64 // per-block maxima
	seq    uint32
}

// NewStage prepares a stage reading from source. recorder may be nil.
func NewStage(cfg Config, source Source, recorder *audio.Recorder) (*Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spec, err := spectral.NewSpectrogram(cfg.FrameSize, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	s := &Stage{
		cfg:      cfg,
		source:   source,
		recorder: recorder,
		now:      time.Now,
		stats:    trigger.NewPeriodic(statsInterval),
		spec:     spec,
		frame:    make([]float32, cfg.FrameSize),
		hop:      make([]float32, cfg.Hop()),
	}
	for i, n := range []int{3, 4, 12} {
		s.bands[i] = make([]float64, n)
		s.blocks[i] = make([]float64, n)
	}
	return s, nil
}

// Run waits for the first band layout, then analyses audio until ctx is
// cancelled, the analyzer side closes, or the source fails. Source
// exhaustion (io.EOF) ends the run without error.
func (s *Stage) Run(ctx context.Context, end *StageEnd) error {
	cfg, err := end.Recv(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, featurechan.ErrClosed) {
			return nil
		}
		return fmt.Errorf("capture: waiting for band layout: %w", err)
	}
	if err := s.Configure(cfg); err != nil {
		return fmt.Errorf("capture: initial band layout: %w", err)
	}
	applog.Infof("Capture: stage running (hop %d, frame %d)", len(s.hop), len(s.frame))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-end.Done():
			return nil
		default:
		}

		var latest *featurechan.Configure
		end.Drain(func(c featurechan.Configure) { latest = &c })
		if latest != nil {
			if err := s.Configure(*latest); err != nil {
				applog.Warnf("Capture: ignoring band layout: %v", err)
			}
		}

		f, err := s.Process()
		if err != nil {
			if errors.Is(err, io.EOF) {
				applog.Infof("Capture: source exhausted")
				return nil
			}
			return fmt.Errorf("capture: %w", err)
		}
		if err := end.Send(f); err != nil {
			return nil
		}
		if s.stats.Step() {
			applog.Debugf("Capture: %d features sent, %d dropped", s.seq, end.Dropped())
		}
	}
}

// Configure rebuilds the filterbanks from a band layout. Invalid layouts
// are rejected and the current filterbanks kept.
func (s *Stage) Configure(c featurechan.Configure) error {
	if err := c.Validate(); err != nil {
		return err
	}
	freqs := s.spec.Frequencies()
	s.banks[0] = spectral.NewFilterbank(c.Spec3, freqs)
	s.banks[1] = spectral.NewFilterbank(c.Spec4, freqs)
	s.banks[2] = spectral.NewFilterbank(c.Spec12, freqs)
	for i, name := range []string{"spec3", "spec4", "spec12"} {
		if n := s.banks[i].Widened(); n > 0 {
			applog.Warnf("Capture: %d %s bands narrower than one bin (%.1f Hz), using the nearest bin",
				n, name, s.cfg.SampleRate/float64(s.cfg.FrameSize))
		}
	}
	applog.Debugf("Capture: band layout updated (spec12 %.0f..%.0f Hz)", c.Spec12.Min, c.Spec12.Max)
	return nil
}

// Process reads one block of hops and reduces it to a Features message.
// The stage must have been configured.
func (s *Stage) Process() (featurechan.Features, error) {
	if s.banks[0] == nil {
		return featurechan.Features{}, errors.New("no band layout")
	}

	spl := math.Inf(-1)
	for i := range s.blocks {
		for j := range s.blocks[i] {
			s.blocks[i][j] = math.Inf(-1)
		}
	}

	for range s.cfg.BlockHops {
		if err := s.source.ReadHop(s.hop); err != nil {
			return featurechan.Features{}, err
		}
		if s.recorder != nil {
			if err := s.recorder.Write(s.hop); err != nil {
				applog.Warnf("Capture: %v", err)
			}
		}
		s.slide()

		spl = math.Max(spl, spectral.SPL(s.frame, s.cfg.SPLFloor))
		mag := s.spec.Magnitudes(s.frame)
		for i, fb := range s.banks {
			fb.Apply(mag, s.bands[i])
			spectral.ToDB(s.bands[i], s.cfg.SPLFloor)
			spectral.MaxInto(s.blocks[i], s.bands[i])
		}
	}

	s.seq++
	f := featurechan.Features{
		Seq:       s.seq,
		Timestamp: s.now().UnixNano(),
		SPL:       spl,
	}
	copy(f.Spec3[:], s.blocks[0])
	copy(f.Spec4[:], s.blocks[1])
	copy(f.Spec12[:], s.blocks[2])
	return f, nil
}

// slide shifts the newest hop into the analysis frame.
func (s *Stage) slide() {
	hop := s.hop
	if len(hop) >= len(s.frame) {
		copy(s.frame, hop[len(hop)-len(s.frame):])
		return
	}
	copy(s.frame, s.frame[len(hop):])
	copy(s.frame[len(s.frame)-len(hop):], hop)
}

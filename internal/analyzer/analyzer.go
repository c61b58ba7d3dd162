// SPDX-License-Identifier: MIT

/*
Package analyzer owns the capture stage and turns its raw features into
normalized signals.

Every poll (60 Hz by default) the analyzer:

 1. compares the five spectral parameters with the previous poll and, when
    the tuple changed, sends one new band layout to the stage;
 2. drains every Features message queued since the last poll;
 3. feeds each drained message, oldest first, into the SPL and band
    normalizers with the live range, baseline and smoothing factor. The
    smoothing factor steps by the capture frame period, not the poll period.

Normalized values are published as snapshots; readers on other goroutines
never block the poll loop.
*/
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lumen/internal/capture"
	"lumen/internal/featurechan"
	applog "lumen/internal/log"
	"lumen/internal/normalize"
	"lumen/internal/params"
	"lumen/internal/spectral"
	"lumen/internal/trigger"
)

// Initial dB value of every normalizer element.
const floorDB = -100

// ErrAlreadyStarted is returned by Start on a running analyzer.
var ErrAlreadyStarted = errors.New("analyzer already started")

// Options tunes the analyzer. Zero values select the defaults.
type Options struct {
	PollRate    time.Duration // poll period, default 1/60 s
	FramePeriod time.Duration // time between Features messages, default PollRate
	StartGrace  time.Duration // how long a new stage must survive, default 250ms
	Manual      bool          // do not run the poll loop; the caller drives Step
}

func (o Options) withDefaults() Options {
	if o.PollRate <= 0 {
		o.PollRate = time.Second / 60
	}
	if o.FramePeriod <= 0 {
		o.FramePeriod = o.PollRate
	}
	if o.StartGrace <= 0 {
		o.StartGrace = 250 * time.Millisecond
	}
	return o
}

// Snapshot is a consistent-enough view of the normalized signals. Slices are
// shared with the normalizers and must not be modified.
type Snapshot struct {
	SPL    float64
	Spec3  []float64
	Spec4  []float64
	Spec12 []float64
}

// Analyzer is created once and passed to whatever needs its signals.
type Analyzer struct {
	store   *params.Store
	spawner capture.Spawner
	opts    Options

	// Owned by the goroutine calling Step.
	layoutChange trigger.Change[params.Spectral]
	layout       spectral.Layout
	hasLayout    bool

	spl    *normalize.Normalizer
	spec3  *normalize.Normalizer
	spec4  *normalize.Normalizer
	spec12 *normalize.Normalizer

	applied   atomic.Uint64
	reconfigs atomic.Uint64

	mu     sync.Mutex
	handle capture.Handle
	err    error
	watch  sync.WaitGroup

	// end is written only while the poll loop is not running.
	end      *capture.AnalyzerEnd
	stopping atomic.Bool

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New returns a stopped analyzer.
func New(store *params.Store, spawner capture.Spawner, opts Options) *Analyzer {
	return &Analyzer{
		store:   store,
		spawner: spawner,
		opts:    opts.withDefaults(),
		spl:     normalize.New(1, floorDB),
		spec3:   normalize.New(3, floorDB),
		spec4:   normalize.New(4, floorDB),
		spec12:  normalize.New(12, floorDB),
	}
}

// Start spawns the capture stage, sends it the initial band layout and
// waits StartGrace for it to fail. A stage that exits within the grace
// period is reported as a failed start. Unless Options.Manual is set, the
// poll loop is started.
func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle != nil {
		return ErrAlreadyStarted
	}

	h, err := a.spawner.Spawn(ctx)
	if err != nil {
		return fmt.Errorf("analyzer: start capture stage: %w", err)
	}

	a.end = h.End()
	a.layoutChange = trigger.Change[params.Spectral]{}
	a.layoutChange.Prime()
	a.pollLayout()
	if !a.hasLayout {
		h.Kill()
		a.end = nil
		return fmt.Errorf("analyzer: no valid band layout for %+v", a.store.Spectral())
	}

	grace := time.NewTimer(a.opts.StartGrace)
	defer grace.Stop()
	select {
	case <-h.Exited():
		h.Kill()
		a.end = nil
		return fmt.Errorf("analyzer: capture stage failed to start: %w", h.Err())
	case <-ctx.Done():
		h.Kill()
		a.end = nil
		return ctx.Err()
	case <-grace.C:
	}

	a.handle = h
	a.err = nil
	a.stopping.Store(false)

	a.watch.Add(1)
	go func() {
		defer a.watch.Done()
		<-h.Exited()
		if a.stopping.Load() {
			return
		}
		a.mu.Lock()
		a.err = h.Err()
		a.mu.Unlock()
		applog.Errorf("Analyzer: %v", h.Err())
	}()

	if !a.opts.Manual {
		a.startLoop()
	}
	applog.Infof("Analyzer: started (poll %s)", a.opts.PollRate)
	return nil
}

func (a *Analyzer) startLoop() {
	a.ticker = time.NewTicker(a.opts.PollRate)
	a.doneChan = make(chan struct{})
	a.stopOnce = sync.Once{}

	ticker := a.ticker
	doneChan := a.doneChan

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ticker.C:
				a.Step()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the poll loop, kills the capture stage and waits for both.
// Calling Stop on a stopped analyzer is a no-op.
func (a *Analyzer) Stop() error {
	a.mu.Lock()
	h := a.handle
	if h == nil {
		a.mu.Unlock()
		return nil
	}
	a.stopping.Store(true)
	if a.ticker != nil {
		a.stopOnce.Do(func() {
			close(a.doneChan)
			a.ticker.Stop()
			a.ticker = nil
		})
	}
	a.mu.Unlock()

	a.wg.Wait()
	err := h.Kill()
	a.watch.Wait()

	a.mu.Lock()
	a.handle = nil
	a.end = nil
	a.mu.Unlock()

	applog.Infof("Analyzer: stopped")
	return err
}

// Close implements io.Closer.
func (a *Analyzer) Close() error {
	return a.Stop()
}

// Step runs one poll. It must not be called concurrently with itself; with
// Options.Manual unset, only the poll loop calls it.
func (a *Analyzer) Step() {
	if a.end == nil {
		return
	}
	a.pollLayout()

	n := a.store.Normalization()
	alpha := normalize.Alpha(time.Duration(n.TimeConstant*float64(time.Second)), a.opts.FramePeriod)
	a.end.Drain(func(f featurechan.Features) {
		a.apply(f, n, alpha)
	})
}

// pollLayout sends a new band layout when the spectral parameters changed.
func (a *Analyzer) pollLayout() {
	sp := a.store.Spectral()
	if !a.layoutChange.Step(sp) {
		return
	}

	layout, err := spectral.NewLayout(sp)
	if err != nil {
		if a.hasLayout {
			applog.Warnf("Analyzer: keeping previous band layout: %v", err)
		} else {
			applog.Warnf("Analyzer: %v", err)
		}
		return
	}

	if err := a.end.Send(featurechan.Configure{Layout: layout}); err != nil {
		applog.Debugf("Analyzer: band layout not sent: %v", err)
		return
	}
	a.layout = layout
	a.hasLayout = true
	a.reconfigs.Add(1)
	applog.Debugf("Analyzer: band layout sent (x0 %.0f, x1 %.0f, x2 %.0f, x3 %.0f, x9 %.0f)",
		sp.X0Min, sp.X1, sp.X2, sp.X3, sp.X9Max)
}

// apply feeds one tuple to the normalizers. Each signal is independent: a
// non-finite band vector is dropped without holding back the others.
func (a *Analyzer) apply(f featurechan.Features, n params.Normalization, alpha float64) {
	a.spl.Update([]float64{f.SPL}, n.Range, n.Baseline, alpha)
	a.spec3.Update(f.Spec3[:], n.Range, n.Baseline, alpha)
	a.spec4.Update(f.Spec4[:], n.Range, n.Baseline, alpha)
	a.spec12.Update(f.Spec12[:], n.Range, n.Baseline, alpha)
	a.applied.Add(1)
}

// SPL returns the normalized sound pressure level.
func (a *Analyzer) SPL() float64 { return a.spl.Normalized()[0] }

// Spec3 returns the normalized 3-band spectrum.
func (a *Analyzer) Spec3() []float64 { return a.spec3.Normalized() }

// Spec4 returns the normalized 4-band spectrum.
func (a *Analyzer) Spec4() []float64 { return a.spec4.Normalized() }

// Spec12 returns the normalized 12-band spectrum.
func (a *Analyzer) Spec12() []float64 { return a.spec12.Normalized() }

// RawSPL returns the last accepted SPL in dB.
func (a *Analyzer) RawSPL() float64 { return a.spl.Raw()[0] }

// Snapshot collects every normalized signal.
func (a *Analyzer) Snapshot() Snapshot {
	return Snapshot{
		SPL:    a.SPL(),
		Spec3:  a.Spec3(),
		Spec4:  a.Spec4(),
		Spec12: a.Spec12(),
	}
}

// Normalizer state accessors for diagnostics and tests.
func (a *Analyzer) SPLState() *normalize.State    { return a.spl.State() }
func (a *Analyzer) Spec3State() *normalize.State  { return a.spec3.State() }
func (a *Analyzer) Spec4State() *normalize.State  { return a.spec4.State() }
func (a *Analyzer) Spec12State() *normalize.State { return a.spec12.State() }

// Applied returns how many feature tuples have been fed to the normalizers.
func (a *Analyzer) Applied() uint64 { return a.applied.Load() }

// Reconfigurations returns how many band layouts have been sent.
func (a *Analyzer) Reconfigurations() uint64 { return a.reconfigs.Load() }

// Err returns why the capture stage stopped, if it stopped on its own.
func (a *Analyzer) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Running reports whether the analyzer has a live capture stage.
func (a *Analyzer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle != nil && a.err == nil
}

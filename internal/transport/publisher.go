// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"
	"time"

	applog "lumen/internal/log"
	"lumen/internal/signals"
)

// FrameSource produces the frame to publish on each tick.
type FrameSource interface {
	Collect() signals.Frame
}

// Publisher periodically collects a frame and sends it to every transport.
// When the frame's beat counter advanced since the previous tick, a beat
// event follows the frame. It runs in a separate goroutine managed by Start
// and Stop.
type Publisher struct {
	source     FrameSource
	transports []Transport
	interval   time.Duration

	ticker   *time.Ticker   // Ticker that triggers publishing.
	doneChan chan struct{}  // Signals the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	lastBeats uint64
	primed    bool
}

// NewPublisher creates a publisher. If the provided interval is invalid
// (<= 0), it defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, source FrameSource, transports ...Transport) (*Publisher, error) {
	if source == nil {
		return nil, fmt.Errorf("Publisher: frame source cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("Publisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("Publisher: Initializing (Interval: %s, Transports: %d)", interval, len(transports))

	return &Publisher{
		source:     source,
		transports: transports,
		interval:   interval,
	}, nil
}

// Start begins the periodic publishing process. Subsequent calls are no-ops
// while running.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Publisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("Publisher: goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.Publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. It is safe to call Stop multiple times.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("Publisher: goroutine finished.")
	return nil
}

// Publish collects and sends one frame, plus a beat event when due. It is
// called by the ticker goroutine and must not be called concurrently with it.
func (p *Publisher) Publish() {
	frame := p.source.Collect()
	p.broadcast(NewFrameMessage(frame))

	if p.primed && frame.Beats != p.lastBeats {
		p.broadcast(NewBeatEvent(frame.Timestamp, frame.Beats))
	}
	p.lastBeats = frame.Beats
	p.primed = true
}

func (p *Publisher) broadcast(data any) {
	for _, t := range p.transports {
		if err := t.Send(data); err != nil {
			applog.Debugf("Publisher: send via %T failed: %v", t, err)
		}
	}
}

// Close stops the publisher and closes every transport.
func (p *Publisher) Close() error {
	err := p.Stop()
	for _, t := range p.transports {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

var _ interface{ Close() error } = (*Publisher)(nil)

// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const recordBitDepth = 32

// Recorder writes captured mono audio to a 32-bit PCM WAV file.
type Recorder struct {
	sampleRate int

	mu        sync.Mutex
	recording atomic.Bool
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer // reused for float to int conversion
}

// NewRecorder returns a stopped recorder for mono audio at sampleRate.
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{
		sampleRate: sampleRate,
		sampleBuf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: recordBitDepth,
		},
	}
}

// Start creates filename and begins recording into it.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording.Load() {
		return errors.New("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	r.file = file
	r.encoder = wav.NewEncoder(file, r.sampleRate, recordBitDepth, 1, 1)
	r.recording.Store(true)
	return nil
}

// Write appends samples in [-1, 1] to the recording. It is a no-op when the
// recorder is stopped.
func (r *Recorder) Write(samples []float32) error {
	if !r.recording.Load() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return nil
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		r.sampleBuf.Data[i] = int(clampUnit(s) * math.MaxInt32)
	}

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	return nil
}

// Stop finalises the WAV header and closes the file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording.Load() {
		return nil
	}
	r.recording.Store(false)

	var errs []error
	if r.encoder != nil {
		errs = append(errs, r.encoder.Close())
		r.encoder = nil
	}
	if r.file != nil {
		errs = append(errs, r.file.Close())
		r.file = nil
	}
	return errors.Join(errs...)
}

// Recording reports whether the recorder is active.
func (r *Recorder) Recording() bool {
	return r.recording.Load()
}

func clampUnit(s float32) float64 {
	return math.Max(-1, math.Min(1, float64(s)))
}

// SPDX-License-Identifier: MIT
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Source delivers mono audio one hop at a time. ReadHop is the only blocking
// call in the capture stage; it fills dst completely or returns an error.
// io.EOF means the source is exhausted.
type Source interface {
	ReadHop(dst []float32) error
	Close() error
}

// WavOptions controls WAV replay.
type WavOptions struct {
	Loop     bool // restart at the end of the file instead of returning io.EOF
	Realtime bool // pace reads to the file's sample rate
}

// WavSource replays a WAV file as if it were a live input.
type WavSource struct {
	file       *os.File
	dec        *wav.Decoder
	opts       WavOptions
	channels   int
	sampleRate int
	scale      float32

	buf       *goaudio.IntBuffer
	start     time.Time
	delivered int

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenWav opens path for replay. The file must be PCM at sampleRate.
func OpenWav(path string, sampleRate float64, opts WavOptions) (*WavSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("open wav: %s is not a valid WAV file", path)
	}
	if int(dec.SampleRate) != int(sampleRate) {
		f.Close()
		return nil, fmt.Errorf("open wav: %s is %d Hz, want %.0f Hz", path, dec.SampleRate, sampleRate)
	}
	if dec.BitDepth == 0 || dec.NumChans == 0 {
		f.Close()
		return nil, fmt.Errorf("open wav: %s has no PCM format", path)
	}

	s := &WavSource{
		file:       f,
		dec:        dec,
		opts:       opts,
		channels:   int(dec.NumChans),
		sampleRate: int(dec.SampleRate),
		scale:      1 / float32(int64(1)<<(dec.BitDepth-1)),
		buf:        &goaudio.IntBuffer{Format: dec.Format()},
		closed:     make(chan struct{}),
	}
	if err := s.rewind(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// ReadHop fills dst with the next len(dst) mono samples. A short final hop
// is zero padded; the call after it returns io.EOF.
func (s *WavSource) ReadHop(dst []float32) error {
	select {
	case <-s.closed:
		return io.EOF
	default:
	}

	need := len(dst) * s.channels
	if cap(s.buf.Data) < need {
		s.buf.Data = make([]int, need)
	}

	filled := 0
	rewound := false
	for filled < len(dst) {
		s.buf.Data = s.buf.Data[:(len(dst)-filled)*s.channels]
		n, err := s.dec.PCMBuffer(s.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read wav: %w", err)
		}
		frames := n / s.channels
		s.mix(dst[filled:filled+frames], s.buf.Data[:frames*s.channels])
		filled += frames

		if frames > 0 {
			rewound = false
			continue
		}
		if !s.opts.Loop || rewound {
			if filled == 0 {
				return io.EOF
			}
			clear(dst[filled:])
			break
		}
		if err := s.rewind(); err != nil {
			return err
		}
		rewound = true
	}

	s.pace(len(dst))
	return nil
}

// Close stops replay. A paced ReadHop in progress returns promptly.
func (s *WavSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.file.Close()
	})
	return err
}

func (s *WavSource) mix(dst []float32, interleaved []int) {
	for i := range dst {
		var sum float32
		for c := range s.channels {
			sum += float32(interleaved[i*s.channels+c])
		}
		dst[i] = sum * s.scale / float32(s.channels)
	}
}

func (s *WavSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind wav: %w", err)
	}
	s.dec = wav.NewDecoder(s.file)
	if err := s.dec.FwdToPCM(); err != nil {
		return fmt.Errorf("rewind wav: %w", err)
	}
	return nil
}

// pace sleeps until the wall clock catches up with the samples delivered.
func (s *WavSource) pace(samples int) {
	if !s.opts.Realtime {
		return
	}
	if s.start.IsZero() {
		s.start = time.Now()
	}
	s.delivered += samples
	due := s.start.Add(time.Duration(float64(s.delivered) / float64(s.sampleRate) * float64(time.Second)))

	wait := time.Until(due)
	if wait <= 0 {
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.closed:
	}
}

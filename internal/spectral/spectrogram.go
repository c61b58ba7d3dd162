// SPDX-License-Identifier: MIT

/*
Package spectral turns audio frames into band energies: a windowed real FFT
(Spectrogram), rectangular filterbanks that average bin magnitudes into
bands (Filterbank), and the band layouts derived from the spectral
parameters.

All buffers are allocated up front. Magnitudes, Apply and ToDB do not
allocate, so the capture stage can call them once per hop.
*/
package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"lumen/pkg/bitint"
)

// Spectrogram computes the magnitude spectrum of one frame at a time.
type Spectrogram struct {
	size       int
	sampleRate float64
	fft        *fourier.FFT

	window []float64    // Hann coefficients
	input  []float64    // windowed frame
	coeffs []complex128 // size/2+1 complex bins
	mag    []float64    // size/2 magnitudes, DC through the bin below Nyquist
	freqs  []float64    // centre frequency of each magnitude bin
}

// NewSpectrogram prepares a spectrogram for frames of size samples. Size
// must be a power of 2.
func NewSpectrogram(size int, sampleRate float64) (*Spectrogram, error) {
	if !bitint.IsPowerOfTwo(size) || size < 2 {
		return nil, fmt.Errorf("frame size must be a power of 2, got %d", size)
	}
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("sample rate must be positive, got %v", sampleRate)
	}

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hann(coeffs)

	bins := size / 2
	freqs := make([]float64, bins)
	for i := range freqs {
		freqs[i] = float64(i) * sampleRate / float64(size)
	}

	return &Spectrogram{
		size:       size,
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(size),
		window:     coeffs,
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
		mag:        make([]float64, bins),
		freqs:      freqs,
	}, nil
}

// Size returns the frame size.
func (s *Spectrogram) Size() int { return s.size }

// Frequencies returns the centre frequency of every magnitude bin. The
// slice is shared and must not be modified.
func (s *Spectrogram) Frequencies() []float64 { return s.freqs }

// Magnitudes windows frame, transforms it and returns the magnitude of bins
// 0..size/2-1. Short frames are zero padded. The returned slice is reused by
// the next call.
func (s *Spectrogram) Magnitudes(frame []float32) []float64 {
	for i := range s.size {
		if i < len(frame) {
			s.input[i] = float64(frame[i]) * s.window[i]
		} else {
			s.input[i] = 0
		}
	}

	s.fft.Coefficients(s.coeffs, s.input)
	for i := range s.mag {
		s.mag[i] = cmplx.Abs(s.coeffs[i])
	}
	return s.mag
}

// SPL returns the level of frame in dB relative to full scale, from its RMS.
// Silence and levels below floor return floor.
func SPL(frame []float32, floor float64) float64 {
	if len(frame) == 0 {
		return floor
	}
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms == 0 {
		return floor
	}
	return math.Max(floor, 20*math.Log10(rms))
}

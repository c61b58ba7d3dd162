// SPDX-License-Identifier: MIT

/*
Package audio owns the audio hardware side of the capture stage: PortAudio
device discovery, a blocking-read input stream that yields one mono hop per
read, and WAV recording of what was captured.

Input is used from a single goroutine (the capture stage). Its buffers are
allocated once at open; ReadHop does not allocate.
*/
package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	applog "lumen/internal/log"
)

// InputConfig selects and shapes the capture stream.
type InputConfig struct {
	DeviceID   int     // DefaultDevice for the system default
	SampleRate float64 // Hz
	Channels   int     // captured channels, downmixed to mono
	LowLatency bool
}

// Input is an open PortAudio input stream in blocking-read mode.
type Input struct {
	stream   *portaudio.Stream
	device   *portaudio.DeviceInfo
	latency  time.Duration
	channels int
	hop      int
	buf      []float32 // hop*channels interleaved samples
}

// OpenInput opens and starts a stream that delivers hop frames per read.
// PortAudio must be initialized.
func OpenInput(cfg InputConfig, hop int) (*Input, error) {
	if hop < 1 {
		return nil, fmt.Errorf("hop must be positive, got %d", hop)
	}
	channels := max(cfg.Channels, 1)

	device, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if channels > device.MaxInputChannels {
		channels = device.MaxInputChannels
	}

	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	in := &Input{
		device:   device,
		latency:  latency,
		channels: channels,
		hop:      hop,
		buf:      make([]float32, hop*channels),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		FramesPerBuffer: hop,
		SampleRate:      cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, in.buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream on %q: %w", device.Name, err)
	}
	in.stream = stream

	applog.Infof("Audio: capturing from %q (%d ch, %.0f Hz, hop %d, latency %s)",
		device.Name, channels, cfg.SampleRate, hop, latency)
	return in, nil
}

// ReadHop blocks until the next hop is available and writes it, downmixed
// to mono, into dst. An input overflow is logged and the data kept.
func (in *Input) ReadHop(dst []float32) error {
	if in.stream == nil {
		return errors.New("input stream closed")
	}
	if err := in.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("read input stream: %w", err)
		}
		applog.Debugf("Audio: input overflowed")
	}

	downmix(dst[:min(len(dst), in.hop)], in.buf, in.channels)
	return nil
}

// Close stops and closes the stream.
func (in *Input) Close() error {
	if in.stream == nil {
		return nil
	}
	stream := in.stream
	in.stream = nil

	if err := stream.Stop(); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}

// Latency returns the requested input latency.
func (in *Input) Latency() time.Duration { return in.latency }

// downmix averages interleaved frames into mono.
func downmix(dst, interleaved []float32, channels int) {
	if channels == 1 {
		copy(dst, interleaved)
		return
	}
	scale := 1 / float32(channels)
	for i := range dst {
		var sum float32
		for _, s := range interleaved[i*channels : (i+1)*channels] {
			sum += s
		}
		dst[i] = sum * scale
	}
}

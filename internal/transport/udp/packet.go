// SPDX-License-Identifier: MIT

/*
Package udp sends signal frames as compact binary datagrams.

Packet Structure (BigEndian):

	+-----------------+-----------+---------------------------------------+
	| Field           | Type      | Description                           |
	|-----------------|-----------|---------------------------------------|
	| Sequence Number | uint32    | Frame sequence                        |
	| Timestamp       | int64     | Nanoseconds since epoch               |
	| BPM             | float32   |                                       |
	| Beat            | float32   | beat_raw, [0, 1)                      |
	| Downbeat        | float32   | downbeat_raw, [0, 1)                  |
	| Beat Count      | float32   | [0, time signature)                   |
	| SPL             | float32   | normalized loudness                   |
	| Spec3           | u16 + N*4 | count, then N float32                 |
	| Spec4           | u16 + N*4 |                                       |
	| Spec12          | u16 + N*4 |                                       |
	+-----------------+-----------+---------------------------------------+

Events are not sent; receivers detect beats from the wrap of the beat phase.
*/
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	applog "lumen/internal/log"
	"lumen/internal/signals"
	"lumen/internal/transport"
)

const headerSize = 4 + 8 + 5*4

var ErrShortPacket = errors.New("short packet")

// Packet is the decoded form of one datagram.
type Packet struct {
	Seq         uint32
	Timestamp   int64
	BPM         float32
	BeatRaw     float32
	DownbeatRaw float32
	BeatCount   float32
	SPL         float32
	Spec3       []float32
	Spec4       []float32
	Spec12      []float32
}

// AppendFrame appends the packet encoding of f to dst.
func AppendFrame(dst []byte, f signals.Frame) []byte {
	dst = binary.BigEndian.AppendUint32(dst, f.Seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(f.Timestamp))
	for _, v := range [...]float64{f.BPM, f.BeatRaw, f.DownbeatRaw, f.BeatCount, f.SPL} {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
	}
	for _, spec := range [...][]float64{f.Spec3, f.Spec4, f.Spec12} {
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(spec)))
		for _, v := range spec {
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
		}
	}
	return dst
}

// Decode parses one datagram.
func Decode(b []byte) (Packet, error) {
	var p Packet
	if len(b) < headerSize {
		return p, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}

	p.Seq = binary.BigEndian.Uint32(b)
	p.Timestamp = int64(binary.BigEndian.Uint64(b[4:]))
	f32 := func(i int) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b[i:])) }
	p.BPM, p.BeatRaw, p.DownbeatRaw, p.BeatCount, p.SPL = f32(12), f32(16), f32(20), f32(24), f32(28)

	rest := b[headerSize:]
	for _, dst := range [...]*[]float32{&p.Spec3, &p.Spec4, &p.Spec12} {
		if len(rest) < 2 {
			return p, ErrShortPacket
		}
		n := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if len(rest) < 4*n {
			return p, ErrShortPacket
		}
		values := make([]float32, n)
		for i := range values {
			values[i] = math.Float32frombits(binary.BigEndian.Uint32(rest[4*i:]))
		}
		*dst = values
		rest = rest[4*n:]
	}
	return p, nil
}

// Transport adapts a Sender to transport.Transport. Frames are encoded
// into a reused buffer; other messages are ignored.
type Transport struct {
	sender *Sender
	buf    []byte
}

// NewTransport dials targetAddress.
func NewTransport(targetAddress string) (*Transport, error) {
	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &Transport{sender: sender, buf: make([]byte, 0, 512)}, nil
}

// Send encodes and sends frames. It is called from the publisher goroutine
// only.
func (t *Transport) Send(data any) error {
	var f signals.Frame
	switch m := data.(type) {
	case transport.FrameMessage:
		f = m.Frame
	case signals.Frame:
		f = m
	default:
		return nil
	}

	t.buf = AppendFrame(t.buf[:0], f)
	if err := t.sender.Send(t.buf); err != nil {
		return err
	}
	applog.Debugf("UDP: Sent packet %d (%d bytes)", f.Seq, len(t.buf))
	return nil
}

func (t *Transport) Close() error {
	return t.sender.Close()
}

var _ transport.Transport = (*Transport)(nil)

// SPDX-License-Identifier: MIT
package featurechan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"lumen/internal/spectral"
)

/*
Stream framing (BigEndian)

	+-----------+-------------+------------------+
	| Tag (u8)  | Length (u32)| Payload (Length) |
	+-----------+-------------+------------------+

Features payload:

	| Seq u32 | Timestamp i64 | SPL f64 | N u16 | N*f64 spec3 | N u16 | N*f64 spec4 | N u16 | N*f64 spec12 |

Configure payload, once per layout entry (spec3, spec4, spec12):

	| Min f64 | Max f64 | N u16 | N*f64 crossovers |
*/

const (
	tagFeatures  byte = 1
	tagConfigure byte = 2

	headerSize = 5
	maxPayload = 1 << 16
)

var (
	// ErrMalformed is returned for frames whose payload does not decode.
	ErrMalformed = errors.New("malformed frame")

	errUnknownTag = errors.New("unknown frame tag")
)

// Codec encodes outbound messages of type S and decodes inbound messages of
// type R for a stream endpoint.
type Codec[S, R any] struct {
	Append func(dst []byte, v S) ([]byte, error)
	Parse  func(tag byte, payload []byte) (R, error)
}

// StageCodec is used by the capture stage: it writes Features and reads
// Configure.
var StageCodec = Codec[Features, Configure]{Append: AppendFeatures, Parse: ParseConfigure}

// AnalyzerCodec is the mirror of StageCodec.
var AnalyzerCodec = Codec[Configure, Features]{Append: AppendConfigure, Parse: ParseFeatures}

// AppendFeatures appends the framed encoding of f to dst.
func AppendFeatures(dst []byte, f Features) ([]byte, error) {
	start := len(dst)
	dst = appendHeader(dst, tagFeatures)
	dst = binary.BigEndian.AppendUint32(dst, f.Seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(f.Timestamp))
	dst = appendFloat(dst, f.SPL)
	dst = appendFloats(dst, f.Spec3[:])
	dst = appendFloats(dst, f.Spec4[:])
	dst = appendFloats(dst, f.Spec12[:])
	return finishFrame(dst, start), nil
}

// ParseFeatures decodes a Features payload.
func ParseFeatures(tag byte, payload []byte) (Features, error) {
	var f Features
	if tag != tagFeatures {
		return f, fmt.Errorf("%w: %d", errUnknownTag, tag)
	}

	d := decoder{buf: payload}
	f.Seq = d.uint32()
	f.Timestamp = int64(d.uint64())
	f.SPL = d.float()
	d.fixedFloats(f.Spec3[:])
	d.fixedFloats(f.Spec4[:])
	d.fixedFloats(f.Spec12[:])
	if err := d.finish(); err != nil {
		return Features{}, err
	}
	return f, nil
}

// AppendConfigure validates c and appends its framed encoding to dst.
func AppendConfigure(dst []byte, c Configure) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return dst, err
	}

	start := len(dst)
	dst = appendHeader(dst, tagConfigure)
	for _, e := range []spectral.BandEdges{c.Spec3, c.Spec4, c.Spec12} {
		dst = appendFloat(dst, e.Min)
		dst = appendFloat(dst, e.Max)
		dst = appendFloats(dst, e.Crossovers)
	}
	return finishFrame(dst, start), nil
}

// ParseConfigure decodes and validates a Configure payload.
func ParseConfigure(tag byte, payload []byte) (Configure, error) {
	var c Configure
	if tag != tagConfigure {
		return c, fmt.Errorf("%w: %d", errUnknownTag, tag)
	}

	d := decoder{buf: payload}
	for _, e := range []*spectral.BandEdges{&c.Spec3, &c.Spec4, &c.Spec12} {
		e.Min = d.float()
		e.Max = d.float()
		e.Crossovers = d.floats()
	}
	if err := d.finish(); err != nil {
		return Configure{}, err
	}
	if err := c.Validate(); err != nil {
		return Configure{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return c, nil
}

// readFrame reads one frame header and payload from r. The returned payload
// aliases buf when it is large enough.
func readFrame(r io.Reader, buf []byte) (byte, []byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	size := binary.BigEndian.Uint32(hdr[1:])
	if size > maxPayload {
		return 0, nil, fmt.Errorf("%w: payload of %d bytes", ErrMalformed, size)
	}
	if cap(buf) < int(size) {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	return hdr[0], buf, nil
}

func appendHeader(dst []byte, tag byte) []byte {
	return append(dst, tag, 0, 0, 0, 0)
}

func finishFrame(dst []byte, start int) []byte {
	binary.BigEndian.PutUint32(dst[start+1:], uint32(len(dst)-start-headerSize))
	return dst
}

func appendFloat(dst []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(dst, math.Float64bits(v))
}

func appendFloats(dst []byte, vs []float64) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(vs)))
	for _, v := range vs {
		dst = appendFloat(dst, v)
	}
	return dst
}

// decoder reads big-endian fields and remembers the first short read.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = fmt.Errorf("%w: truncated payload", ErrMalformed)
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) uint16() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) uint32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) uint64() uint64 {
	if b := d.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) float() float64 {
	return math.Float64frombits(d.uint64())
}

func (d *decoder) floats() []float64 {
	n := int(d.uint16())
	if d.err != nil {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.float()
	}
	return out
}

func (d *decoder) fixedFloats(dst []float64) {
	n := int(d.uint16())
	if d.err == nil && n != len(dst) {
		d.err = fmt.Errorf("%w: %d values, want %d", ErrMalformed, n, len(dst))
		return
	}
	for i := range dst {
		dst[i] = d.float()
	}
}

func (d *decoder) finish() error {
	if d.err == nil && len(d.buf) != 0 {
		d.err = fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(d.buf))
	}
	return d.err
}

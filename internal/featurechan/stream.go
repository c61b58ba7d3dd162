// SPDX-License-Identifier: MIT
package featurechan

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	applog "lumen/internal/log"
)

// NewStreamEnd runs an endpoint over a byte stream. Outbound messages are
// written by a background goroutine so Send keeps its never-blocking
// contract even when the stream is slow. A second goroutine decodes inbound
// frames; when the stream ends, Done is closed and Recv reports ErrClosed.
//
// Close flushes messages already queued, then closes both halves of the
// stream.
func NewStreamEnd[S, R any](r io.ReadCloser, w io.WriteCloser, codec Codec[S, R], sendDepth, recvDepth int) *End[S, R] {
	e := newEnd(newQueue[S](sendDepth), newQueue[R](recvDepth))

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		writeLoop(e.out, w, codec.Append)
	}()

	go func() {
		readLoop(e.in, r, codec.Parse)
		e.markDone()
	}()

	e.closeFn = func() error {
		e.out.close()
		writer.Wait()
		werr := w.Close()
		rerr := r.Close()
		e.in.close()
		e.markDone()
		return errors.Join(werr, rerr)
	}
	return e
}

func writeLoop[S any](out *queue[S], w io.Writer, encode func([]byte, S) ([]byte, error)) {
	var buf []byte
	for {
		v, err := out.pop(context.Background())
		if err != nil {
			return
		}

		buf, err = encode(buf[:0], v)
		if err != nil {
			applog.Warnf("featurechan: dropping outbound message: %v", err)
			continue
		}
		if _, err := w.Write(buf); err != nil {
			applog.Debugf("featurechan: stream write failed: %v", err)
			out.close()
			return
		}
	}
}

func readLoop[R any](in *queue[R], r io.Reader, decode func(byte, []byte) (R, error)) {
	defer in.close()

	br := bufio.NewReader(r)
	var buf []byte
	for {
		tag, payload, err := readFrame(br, buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !in.isClosed() {
				applog.Debugf("featurechan: stream read failed: %v", err)
			}
			return
		}
		buf = payload

		v, err := decode(tag, payload)
		if err != nil {
			applog.Debugf("featurechan: skipping inbound frame: %v", err)
			continue
		}
		if err := in.push(v); err != nil {
			return
		}
	}
}

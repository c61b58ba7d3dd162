// SPDX-License-Identifier: MIT

/*
Package featurechan is the message channel between the capture stage and the
analyzer. Each direction is an independent bounded queue:

	analyzer --Configure--> capture stage
	analyzer <--Features--- capture stage

Sending never blocks. A full queue discards its oldest message, so a slow
reader sees stale-but-recent data rather than stalling the writer. Readers
drain everything currently queued without waiting; only the capture stage's
initial handshake waits for a message.

Pipe connects two endpoints in memory. NewStreamEnd runs an endpoint over a
byte stream, such as the stdin/stdout of a child process, using the binary
codec in codec.go.
*/
package featurechan

import (
	"context"
	"errors"
	"sync"

	"lumen/internal/spectral"
)

// ErrClosed is returned when sending on, or waiting on, a closed endpoint.
var ErrClosed = errors.New("feature channel closed")

// Features is one analysed audio frame. Values are in dB and finite; silence
// reads as the stage's SPL floor.
type Features struct {
	Seq       uint32
	Timestamp int64 // nanoseconds since the Unix epoch, taken by the capture stage
	SPL       float64
	Spec3     [3]float64
	Spec4     [4]float64
	Spec12    [12]float64
}

// Configure carries the band edges the capture stage aggregates into.
type Configure struct {
	spectral.Layout
}

// End is one side of the channel: it sends S and receives R.
type End[S, R any] struct {
	out *queue[S]
	in  *queue[R]

	closeOnce sync.Once
	closeFn   func() error
	closeErr  error
	done      chan struct{}
	doneOnce  sync.Once
}

func newEnd[S, R any](out *queue[S], in *queue[R]) *End[S, R] {
	return &End[S, R]{out: out, in: in, done: make(chan struct{})}
}

// Pipe returns two connected endpoints. depthAB bounds the messages queued
// from the first endpoint to the second, depthBA the other direction.
func Pipe[A, B any](depthAB, depthBA int) (*End[A, B], *End[B, A]) {
	ab := newQueue[A](depthAB)
	ba := newQueue[B](depthBA)

	a := newEnd(ab, ba)
	b := newEnd(ba, ab)

	shutdown := func() error {
		ab.close()
		ba.close()
		a.markDone()
		b.markDone()
		return nil
	}
	a.closeFn = shutdown
	b.closeFn = shutdown
	return a, b
}

// Send queues v for the peer. It never blocks; when the queue is full the
// oldest pending message is discarded.
func (e *End[S, R]) Send(v S) error {
	return e.out.push(v)
}

// Drain hands every message received so far to fn, oldest first, and
// returns the count. It never waits.
func (e *End[S, R]) Drain(fn func(R)) int {
	return e.in.drain(fn)
}

// Recv waits for the next message. It returns ErrClosed once the peer has
// gone and nothing is left to read.
func (e *End[S, R]) Recv(ctx context.Context) (R, error) {
	return e.in.pop(ctx)
}

// Done is closed when the inbound direction can deliver no more messages.
func (e *End[S, R]) Done() <-chan struct{} {
	return e.done
}

// Dropped returns how many outbound messages were discarded because the
// queue was full.
func (e *End[S, R]) Dropped() uint64 {
	return e.out.droppedCount()
}

// Close shuts the endpoint down. It is safe to call more than once.
func (e *End[S, R]) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.closeFn()
	})
	return e.closeErr
}

func (e *End[S, R]) markDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

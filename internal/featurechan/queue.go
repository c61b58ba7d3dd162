// SPDX-License-Identifier: MIT
package featurechan

import (
	"context"
	"sync"
)

// queue is a bounded FIFO that never blocks the producer: when full, the
// oldest element is discarded to make room.
type queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	n       int
	dropped uint64
	closed  bool
	ready   chan struct{} // signalled on push and close
}

func newQueue[T any](depth int) *queue[T] {
	if depth < 1 {
		depth = 1
	}
	return &queue[T]{
		buf:   make([]T, depth),
		ready: make(chan struct{}, 1),
	}
}

func (q *queue[T]) push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.n == len(q.buf) {
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		q.dropped++
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	q.mu.Unlock()

	q.signal()
	return nil
}

// popLocked removes the oldest element. The caller holds mu and has checked
// that the queue is not empty.
func (q *queue[T]) popLocked() T {
	var zero T
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v
}

// drain hands every queued element to fn in arrival order without waiting
// and returns how many there were. fn runs without the lock held.
func (q *queue[T]) drain(fn func(T)) int {
	count := 0
	for {
		q.mu.Lock()
		if q.n == 0 {
			q.mu.Unlock()
			return count
		}
		v := q.popLocked()
		q.mu.Unlock()

		fn(v)
		count++
	}
}

// pop waits for an element. Elements queued before close are still
// returned; after that pop reports ErrClosed.
func (q *queue[T]) pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.n > 0 {
			v := q.popLocked()
			q.mu.Unlock()
			return v, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *queue[T]) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

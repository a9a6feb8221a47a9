package peerlink

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push after Close.
var ErrQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO with a receive channel, so consumers can select
// on it alongside other channels. Push never blocks on the consumer.
// Any number of goroutines may Push; items are delivered in push order.
type Queue[T any] struct {
	mu     sync.Mutex
	closed bool
	in     chan T
	out    chan T
}

// NewQueue creates a queue and starts its delivery goroutine.
// The goroutine exits once the queue is closed and fully drained.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go q.pump()
	return q
}

// Push appends v to the queue.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	// pump is always ready to receive while the queue is open
	q.in <- v
	return nil
}

// C returns the receive side of the queue. It is closed after Close once
// every pushed item has been received.
func (q *Queue[T]) C() <-chan T {
	return q.out
}

// Close stops accepting items. Items already pushed are still delivered.
// Safe to call multiple times.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.in)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) pump() {
	var (
		pending []T
		in      = q.in
	)
	for {
		if in == nil && len(pending) == 0 {
			close(q.out)
			return
		}

		var (
			out  chan T
			head T
		)
		if len(pending) > 0 {
			out = q.out
			head = pending[0]
		}

		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			pending = append(pending, v)
		case out <- head:
			var zero T
			pending[0] = zero
			pending = pending[1:]
		}
	}
}

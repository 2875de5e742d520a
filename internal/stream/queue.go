// Package stream carries discovery events from the producing goroutine to an
// HTTP response as Server-Sent Events
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/juju/collections/deque"
)

// ErrClosed is returned by Next once the queue is closed and empty
var ErrClosed = errors.New("stream: queue closed")

// Queue is an unbounded FIFO. Any number of goroutines may Push; a single
// consumer calls Next. Push never blocks
type Queue[T any] struct {
	mu     sync.Mutex
	items  *deque.Deque
	closed bool
	ready  chan struct{}
}

// NewQueue creates an empty queue
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items: deque.New(),
		ready: make(chan struct{}, 1),
	}
}

// Push appends v. Values pushed after Close are dropped
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items.PushBack(v)
	q.mu.Unlock()
	q.signal()
}

// Close marks the end of the stream. Items already queued are still returned
// by Next. Close is idempotent
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Next blocks until an item is available, the queue is closed and drained
// (ErrClosed), or ctx is done (ctx.Err())
func (q *Queue[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if item, ok := q.items.PopFront(); ok {
			more := q.items.Len() > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return item.(T), nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return zero, ErrClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Package queue buffers progression events between the HTTP intake and the
// worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event without blocking. It fails with ErrFull when the
	// queue is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, e model.Event) error

	// Dequeue returns the channel events are delivered on. It is closed once
	// the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.Event

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Close stops intake; buffered events remain readable.
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	events   chan model.Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan model.Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: Event is sent by value
	// The read lock keeps Close from closing the channel mid-send.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError("full")
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Event {
	return q.events
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.observe()
}

func (q *InMemoryQueue) observe() int {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close implements Queue. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

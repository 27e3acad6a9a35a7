// Package dedupe tracks event IDs so redelivered events are applied at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50_000

// Deduper records seen event IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a later delivery is processed again. Used when
	// an event was recorded but could not be enqueued or applied.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps IDs in insertion order. In bounded mode the oldest
// ID is evicted once maxSize is reached; maxSize <= 0 never evicts.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is oldest
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.seen[id]; ok {
		d.order.Remove(e)
		delete(d.seen, id)
	}
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}

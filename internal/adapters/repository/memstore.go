package repository

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

// lockStripes bounds the number of key mutexes. Keys hashing to the same
// stripe serialize, which is safe but slower.
const lockStripes = 256

// MemStore is an in-process Store. Values are copied on the way in and out
// so callers never share backing arrays with the store.
type MemStore struct {
	mu      sync.RWMutex
	data    map[Collection]map[string][]byte
	stripes [lockStripes]sync.Mutex
	closed  bool

	name   string
	logger logger.Logger
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		data:   make(map[Collection]map[string][]byte),
		name:   "memory",
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func stripeOf(c Collection, key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(c))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}

// lockRefs acquires the stripes covering refs in ascending order and
// returns the matching unlock function.
func (s *MemStore) lockRefs(refs []Ref) func() {
	idx := make([]int, 0, len(refs))
	seen := make(map[int]struct{}, len(refs))
	for _, r := range refs {
		i := stripeOf(r.Collection, r.Key)
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		s.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.stripes[idx[j]].Unlock()
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (s *MemStore) read(c Collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return clone(s.data[c][key]), nil
}

func (s *MemStore) observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(s.name, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && isUnavailable(err) {
		metrics.RecordStoreError(s.name, op)
	}
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, c Collection, key string) (v []byte, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err = s.read(c, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// Put implements Store.
func (s *MemStore) Put(ctx context.Context, c Collection, key string, value []byte) (err error) {
	defer func(start time.Time) { s.observe("put", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		return ErrInvalidRef
	}
	unlock := s.lockRefs([]Ref{{Collection: c, Key: key}})
	defer unlock()
	return s.write([]Ref{{Collection: c, Key: key}}, [][]byte{value})
}

func (s *MemStore) write(refs []Ref, values [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i, r := range refs {
		if values[i] == nil {
			continue
		}
		m, ok := s.data[r.Collection]
		if !ok {
			m = make(map[string][]byte)
			s.data[r.Collection] = m
		}
		m[r.Key] = clone(values[i])
	}
	return nil
}

// AtomicUpdate implements Store.
func (s *MemStore) AtomicUpdate(ctx context.Context, c Collection, key string, fn UpdateFunc) ([]byte, error) {
	out, err := s.AtomicUpdateMany(ctx, []Ref{{Collection: c, Key: key}}, func(cur [][]byte) ([][]byte, error) {
		v, err := fn(cur[0])
		if err != nil {
			return nil, err
		}
		return [][]byte{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// AtomicUpdateMany implements Store. Stripes are locked in ascending order
// so overlapping multi-key updates cannot deadlock.
func (s *MemStore) AtomicUpdateMany(ctx context.Context, refs []Ref, fn UpdateManyFunc) (out [][]byte, err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())
	if err := validateRefs(refs); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.lockRefs(refs)
	defer unlock()

	current := make([][]byte, len(refs))
	for i, r := range refs {
		if current[i], err = s.read(r.Collection, r.Key); err != nil {
			return nil, err
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if len(next) != len(refs) {
		return nil, ErrInvalidRef
	}
	if err := s.write(refs, next); err != nil {
		return nil, err
	}

	out = make([][]byte, len(refs))
	for i := range refs {
		if next[i] != nil {
			out[i] = clone(next[i])
		} else {
			out[i] = current[i]
		}
	}
	return out, nil
}

// DeleteWhere implements Store. Each candidate is re-checked under its key
// lock so a concurrent update cannot resurrect a deleted record.
func (s *MemStore) DeleteWhere(ctx context.Context, c Collection, pred Predicate) (n int, err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	keys := make([]string, 0, len(s.data[c]))
	for k, v := range s.data[c] {
		if pred(k, v) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	for _, k := range keys {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		unlock := s.lockRefs([]Ref{{Collection: c, Key: k}})
		s.mu.Lock()
		if v, ok := s.data[c][k]; ok && pred(k, v) {
			delete(s.data[c], k)
			n++
		}
		s.mu.Unlock()
		unlock()
	}
	if n > 0 {
		s.logger.Debug(ctx, "deleted records", logger.String("collection", string(c)), logger.Int("count", n))
	}
	return n, nil
}

// List implements Store.
func (s *MemStore) List(ctx context.Context, c Collection, prefix string) (out []Record, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	for k, v := range s.data[c] {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Record{Key: k, Value: clone(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Len returns the number of records in c.
func (s *MemStore) Len(c Collection) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[c])
}

// Close implements Store. Subsequent calls fail with ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func validateRefs(refs []Ref) error {
	if len(refs) == 0 {
		return ErrInvalidRef
	}
	for _, r := range refs {
		if r.Collection == "" || r.Key == "" {
			return ErrInvalidRef
		}
	}
	return nil
}

// Package repository defines the record store contract used by the
// progression engine and its in-memory implementation.
package repository

import "context"

// Collection names a group of records sharing a key space.
type Collection string

// Collections used by the progression engine.
const (
	PointsAccounts Collection = "points_accounts"
	Badges         Collection = "badges"
	StreakRecords  Collection = "streak_records"
)

// Ref addresses a single record.
type Ref struct {
	Collection Collection
	Key        string
}

// Record is a stored value with its key.
type Record struct {
	Key   string
	Value []byte
}

// UpdateFunc maps the current value (nil when absent) to the value to
// persist. Returning a nil value leaves the record untouched. Returning an
// error aborts the update and nothing is written.
type UpdateFunc func(current []byte) ([]byte, error)

// UpdateManyFunc is UpdateFunc over several records. current and the
// returned slice are indexed like the refs passed to AtomicUpdateMany.
type UpdateManyFunc func(current [][]byte) ([][]byte, error)

// Predicate selects records for DeleteWhere.
type Predicate func(key string, value []byte) bool

// Store provides keyed record access with per-key atomic read-modify-write.
//
// Failures of the underlying persistence wrap ErrStoreUnavailable. Errors
// returned by update functions are passed back unmodified.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, c Collection, key string) ([]byte, error)

	// Put replaces the value stored under key.
	Put(ctx context.Context, c Collection, key string, value []byte) error

	// AtomicUpdate applies fn to the current value and persists the result
	// as one atomic unit. It returns the value stored afterwards.
	AtomicUpdate(ctx context.Context, c Collection, key string, fn UpdateFunc) ([]byte, error)

	// AtomicUpdateMany is AtomicUpdate across several records: either all
	// results are persisted or none are.
	AtomicUpdateMany(ctx context.Context, refs []Ref, fn UpdateManyFunc) ([][]byte, error)

	// DeleteWhere removes every record of c matching pred and returns how
	// many were removed.
	DeleteWhere(ctx context.Context, c Collection, pred Predicate) (int, error)

	// List returns the records of c whose key starts with prefix, ordered by key.
	List(ctx context.Context, c Collection, prefix string) ([]Record, error)

	// Close releases resources held by the store.
	Close() error
}

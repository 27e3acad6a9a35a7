// Package redisstore implements repository.Store on Redis using optimistic
// WATCH/MULTI transactions.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

const (
	backendName       = "redis"
	defaultNamespace  = "kudos"
	defaultMaxRetries = 32
	dialTimeout       = 5 * time.Second
	pingTimeout       = 5 * time.Second
)

// ErrConflict is returned when an optimistic update keeps losing races.
var ErrConflict = errors.New("redis update conflict: retries exhausted")

// Store is a Redis-backed repository.Store. Each record is a string key
// "<ns>:<collection>:<key>"; a set "<ns>:<collection>:_index" lists keys.
type Store struct {
	rdb        goredis.UniversalClient
	namespace  string
	maxRetries int
	logger     logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace sets the key namespace.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

// WithMaxRetries bounds optimistic retries per update.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to addr and verifies the connection.
func Open(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: dialTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, opts...), nil
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:        rdb,
		namespace:  defaultNamespace,
		maxRetries: defaultMaxRetries,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordKey(c repository.Collection, key string) string {
	return s.namespace + ":" + string(c) + ":" + key
}

func (s *Store) indexKey(c repository.Collection) string {
	return s.namespace + ":" + string(c) + ":_index"
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(backendName, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && errors.Is(err, repository.ErrStoreUnavailable) {
		metrics.RecordStoreError(backendName, op)
	}
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, c repository.Collection, key string) (v []byte, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())
	v, err = s.rdb.Get(ctx, s.recordKey(c, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, repository.Unavailable("redis get", err)
	}
	return v, nil
}

// Put implements repository.Store.
func (s *Store) Put(ctx context.Context, c repository.Collection, key string, value []byte) (err error) {
	defer func(start time.Time) { observe("put", start, err) }(time.Now())
	if value == nil || key == "" {
		return repository.ErrInvalidRef
	}
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.recordKey(c, key), value, 0)
		p.SAdd(ctx, s.indexKey(c), key)
		return nil
	})
	if err != nil {
		return repository.Unavailable("redis put", err)
	}
	return nil
}

// AtomicUpdate implements repository.Store.
func (s *Store) AtomicUpdate(ctx context.Context, c repository.Collection, key string, fn repository.UpdateFunc) ([]byte, error) {
	out, err := s.AtomicUpdateMany(ctx, []repository.Ref{{Collection: c, Key: key}}, func(cur [][]byte) ([][]byte, error) {
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

// fnError marks errors produced by the caller's update function so they are
// returned unmodified rather than treated as backend failures.
type fnError struct{ err error }

func (e fnError) Error() string { return e.err.Error() }

// AtomicUpdateMany implements repository.Store: WATCH every key, read,
// apply fn, then MULTI/EXEC the writes. A concurrent write aborts EXEC and
// the whole cycle is retried.
func (s *Store) AtomicUpdateMany(ctx context.Context, refs []repository.Ref, fn repository.UpdateManyFunc) (out [][]byte, err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())
	if len(refs) == 0 {
		return nil, repository.ErrInvalidRef
	}
	keys := make([]string, len(refs))
	for i, r := range refs {
		if r.Collection == "" || r.Key == "" {
			return nil, repository.ErrInvalidRef
		}
		keys[i] = s.recordKey(r.Collection, r.Key)
	}

	txf := func(tx *goredis.Tx) error {
		current := make([][]byte, len(refs))
		for i, k := range keys {
			v, err := tx.Get(ctx, k).Bytes()
			switch {
			case errors.Is(err, goredis.Nil):
			case err != nil:
				return err
			default:
				current[i] = v
			}
		}

		next, err := fn(current)
		if err != nil {
			return fnError{err: err}
		}
		if len(next) != len(refs) {
			return fnError{err: repository.ErrInvalidRef}
		}

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			for i, r := range refs {
				if next[i] == nil {
					continue
				}
				p.Set(ctx, keys[i], next[i], 0)
				p.SAdd(ctx, s.indexKey(r.Collection), r.Key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = make([][]byte, len(refs))
		for i := range refs {
			if next[i] != nil {
				out[i] = next[i]
			} else {
				out[i] = current[i]
			}
		}
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = s.rdb.Watch(ctx, txf, keys...)
		if err == nil {
			return out, nil
		}
		var fe fnError
		if errors.As(err, &fe) {
			return nil, fe.err
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return nil, repository.Unavailable("redis update", err)
	}
	s.logger.Warn(ctx, "optimistic update retries exhausted", logger.Int("retries", s.maxRetries))
	return nil, repository.Unavailable("redis update", ErrConflict)
}

// DeleteWhere implements repository.Store. Each candidate is re-read under
// WATCH so a record changed after the scan is judged on its new value.
func (s *Store) DeleteWhere(ctx context.Context, c repository.Collection, pred repository.Predicate) (n int, err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())
	recs, err := s.List(ctx, c, "")
	if err != nil {
		return 0, err
	}
	for _, r := range recs {
		if !pred(r.Key, r.Value) {
			continue
		}
		rk := s.recordKey(c, r.Key)
		deleted := false
		for attempt := 0; attempt < s.maxRetries; attempt++ {
			err = s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
				v, err := tx.Get(ctx, rk).Bytes()
				if errors.Is(err, goredis.Nil) {
					return nil
				}
				if err != nil {
					return err
				}
				if !pred(r.Key, v) {
					return nil
				}
				_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
					p.Del(ctx, rk)
					p.SRem(ctx, s.indexKey(c), r.Key)
					return nil
				})
				if err == nil {
					deleted = true
				}
				return err
			}, rk)
			if !errors.Is(err, goredis.TxFailedErr) {
				break
			}
		}
		if err != nil {
			return n, repository.Unavailable("redis delete", err)
		}
		if deleted {
			n++
		}
	}
	return n, nil
}

// List implements repository.Store.
func (s *Store) List(ctx context.Context, c repository.Collection, prefix string) (out []repository.Record, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())
	members, err := s.rdb.SMembers(ctx, s.indexKey(c)).Result()
	if err != nil {
		return nil, repository.Unavailable("redis list", err)
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			keys = append(keys, m)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	rks := make([]string, len(keys))
	for i, k := range keys {
		rks[i] = s.recordKey(c, k)
	}
	vals, err := s.rdb.MGet(ctx, rks...).Result()
	if err != nil {
		return nil, repository.Unavailable("redis mget", err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Indexed but deleted between SMEMBERS and MGET.
			continue
		}
		out = append(out, repository.Record{Key: keys[i], Value: []byte(str)})
	}
	return out, nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	return s.rdb.Close()
}

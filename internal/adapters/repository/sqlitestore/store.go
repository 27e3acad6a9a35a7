// Package sqlitestore implements repository.Store on SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	backendName = "sqlite"
	memoryPath  = ":memory:"
)

// migrations are applied in order on Open. Each string is one statement.
var migrations = []string{ //nolint:gochecknoglobals // schema
	`CREATE TABLE IF NOT EXISTS records (
		collection TEXT    NOT NULL,
		key        TEXT    NOT NULL,
		value      BLOB    NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (collection, key)
	)`,
}

// Store is a SQLite-backed repository.Store. It keeps a single connection,
// so transactions serialize and every atomic update is one transaction.
type Store struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := memoryPath
	if path != memoryPath {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db, logger: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	s.logger.Info(ctx, "sqlite store opened", logger.String("path", path))
	return s, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
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
	row := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE collection = ? AND key = ?`, string(c), key)
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, repository.Unavailable("sqlite get", err)
	}
	return v, nil
}

// Put implements repository.Store.
func (s *Store) Put(ctx context.Context, c repository.Collection, key string, value []byte) (err error) {
	defer func(start time.Time) { observe("put", start, err) }(time.Now())
	if value == nil || key == "" {
		return repository.ErrInvalidRef
	}
	if err := upsert(ctx, s.db, c, key, value, s.now()); err != nil {
		return repository.Unavailable("sqlite put", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, c repository.Collection, key string, value []byte, at time.Time) error {
	_, err := db.ExecContext(ctx, `INSERT INTO records (collection, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(c), key, value, at.UTC().UnixMilli())
	return err
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

// AtomicUpdateMany implements repository.Store within one transaction.
func (s *Store) AtomicUpdateMany(ctx context.Context, refs []repository.Ref, fn repository.UpdateManyFunc) (out [][]byte, err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())
	if len(refs) == 0 {
		return nil, repository.ErrInvalidRef
	}
	for _, r := range refs {
		if r.Collection == "" || r.Key == "" {
			return nil, repository.ErrInvalidRef
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, repository.Unavailable("sqlite begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	current := make([][]byte, len(refs))
	for i, r := range refs {
		var v []byte
		err := tx.QueryRowContext(ctx, `SELECT value FROM records WHERE collection = ? AND key = ?`, string(r.Collection), r.Key).Scan(&v)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, repository.Unavailable("sqlite read", err)
		default:
			current[i] = v
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if len(next) != len(refs) {
		return nil, repository.ErrInvalidRef
	}

	at := s.now()
	out = make([][]byte, len(refs))
	for i, r := range refs {
		if next[i] == nil {
			out[i] = current[i]
			continue
		}
		if err := upsert(ctx, tx, r.Collection, r.Key, next[i], at); err != nil {
			return nil, repository.Unavailable("sqlite write", err)
		}
		out[i] = next[i]
	}
	if err := tx.Commit(); err != nil {
		return nil, repository.Unavailable("sqlite commit", err)
	}
	return out, nil
}

// DeleteWhere implements repository.Store.
func (s *Store) DeleteWhere(ctx context.Context, c repository.Collection, pred repository.Predicate) (n int, err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, repository.Unavailable("sqlite begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	recs, err := query(ctx, tx, `SELECT key, value FROM records WHERE collection = ?`, string(c))
	if err != nil {
		return 0, err
	}
	for _, r := range recs {
		if !pred(r.Key, r.Value) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND key = ?`, string(c), r.Key); err != nil {
			return 0, repository.Unavailable("sqlite delete", err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, repository.Unavailable("sqlite commit", err)
	}
	return n, nil
}

// List implements repository.Store.
func (s *Store) List(ctx context.Context, c repository.Collection, prefix string) (out []repository.Record, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())
	return query(ctx, s.db,
		`SELECT key, value FROM records WHERE collection = ? AND substr(key, 1, ?) = ? ORDER BY key`,
		string(c), utf8.RuneCountInString(prefix), prefix)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func query(ctx context.Context, q querier, stmt string, args ...any) ([]repository.Record, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, repository.Unavailable("sqlite query", err)
	}
	defer func() { _ = rows.Close() }()

	var out []repository.Record
	for rows.Next() {
		var r repository.Record
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			return nil, repository.Unavailable("sqlite scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Unavailable("sqlite rows", err)
	}
	return out, nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

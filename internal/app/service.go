// Package service is the progression façade: it composes the points ledger,
// badge machine and streak tracker, and runs the asynchronous event intake
// used by the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/kudos/internal/adapters/mq/queue"
	workerpool "github.com/okian/kudos/internal/adapters/mq/worker"
	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/domain/badge"
	"github.com/okian/kudos/internal/domain/dedupe"
	"github.com/okian/kudos/internal/domain/levels"
	"github.com/okian/kudos/internal/domain/points"
	"github.com/okian/kudos/internal/domain/streak"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

// Default intake configuration.
const (
	defaultQueueSize  = 10_000
	defaultDedupeSize = 50_000
)

// defaultMilestones are the streak lengths that feed consistency_master.
var defaultMilestones = []int{7, 30, 100} //nolint:gochecknoglobals // default table

// Service implements the progression operations. The engine operations work
// as soon as New returns; Start is only needed for the event intake.
type Service struct {
	mu sync.RWMutex

	// Engine
	store   repository.Store
	table   *levels.Table
	catalog *badge.Catalog
	ledger  *points.Ledger
	badges  *badge.Machine
	streaks *streak.Tracker

	// Intake
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	window      time.Duration
	milestones  map[int]struct{}
	workerCount int
	queueSize   int
	dedupeSize  int
	now         func() time.Time

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service. Without WithStore it uses an in-memory store.
func New(opts ...Option) *Service {
	s := &Service{
		window:      streak.DefaultWindow,
		workerCount: runtime.NumCPU() * 2,
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		now:         time.Now,
		logger:      logger.Nop(),
	}
	WithStreakMilestones(defaultMilestones)(s)
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemStore(repository.WithLogger(s.logger))
	}
	if s.table == nil {
		s.table = levels.Default()
	}
	if s.catalog == nil {
		s.catalog = badge.NewCatalog()
	}

	s.ledger = points.New(s.store, s.table,
		points.WithClock(s.now),
		points.WithLogger(s.logger),
	)
	s.badges = badge.New(s.store, s.table, s.catalog,
		badge.WithClock(s.now),
		badge.WithLogger(s.logger),
	)
	s.streaks = streak.New(s.store,
		streak.WithWindow(s.window),
		streak.WithClock(s.now),
		streak.WithLogger(s.logger),
	)
	return s
}

// Start creates the dedupe cache, the event queue and the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting progression service...")

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s, s.logger)
	// Workers outlive the start request; Stop drains them.
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "progression service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop closes the intake and waits for queued events to be applied.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping progression service...")
	err := s.workerPool.Shutdown(ctx)
	s.started = false
	if err != nil {
		s.logger.Error(ctx, "event intake did not drain", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "progression service stopped")
	return nil
}

// Started reports whether the intake is running.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"levels":      s.table.Len(),
	}

	if n, err := s.ledger.Count(ctx); err == nil {
		stats["totalAccounts"] = n
	} else {
		s.logger.Warn(ctx, "count accounts failed", logger.Error(err))
	}

	if s.started {
		stats["queueLength"] = s.eventQueue.Len(ctx)
		stats["dedupeEntries"] = s.deduper.Size()
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}

package service

import (
	"time"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/domain/badge"
	"github.com/okian/kudos/internal/domain/levels"
	"github.com/okian/kudos/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the record store. The service does not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLevels sets the threshold table.
func WithLevels(table *levels.Table) Option {
	return func(s *Service) {
		if table != nil {
			s.table = table
		}
	}
}

// WithCatalog sets the badge rules.
func WithCatalog(c *badge.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithStreakWindow sets the streak continuity window.
func WithStreakWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithStreakMilestones sets the streak lengths that count toward the
// consistency badge. An empty list makes every activity count.
func WithStreakMilestones(milestones []int) Option {
	return func(s *Service) {
		s.milestones = make(map[int]struct{}, len(milestones))
		for _, m := range milestones {
			s.milestones[m] = struct{}{}
		}
	}
}

// WithWorkerCount sets the number of event workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithClock sets the time source shared by every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

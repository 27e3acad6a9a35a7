package repository

import "github.com/okian/kudos/pkg/logger"

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(s *MemStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithName sets the backend label reported in metrics.
func WithName(name string) Option {
	return func(s *MemStore) {
		if name != "" {
			s.name = name
		}
	}
}

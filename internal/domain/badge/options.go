package badge

import (
	"time"

	"github.com/okian/kudos/pkg/logger"
)

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithClock sets the time source used for award and update stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the machine logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l.Named("badge")
		}
	}
}

package streak

import (
	"time"

	"github.com/okian/kudos/pkg/logger"
)

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithWindow sets the continuity window.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithClock sets the time source used when an activity has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the tracker logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l.Named("streak")
		}
	}
}

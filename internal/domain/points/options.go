package points

import (
	"time"

	"github.com/okian/kudos/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithClock sets the time source used to stamp LastActivityAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.logger = lg.Named("points")
		}
	}
}

package repository

import (
	"errors"
	"fmt"

	"github.com/okian/kudos/internal/domain/model"
)

// Sentinel kinds for store errors. They alias the engine taxonomy so callers
// can match either name.
var (
	ErrNotFound         = model.ErrNotFound
	ErrStoreUnavailable = model.ErrStoreUnavailable
	ErrClosed           = fmt.Errorf("%w: store closed", model.ErrStoreUnavailable)
	ErrInvalidRef       = errors.New("invalid record reference")
)

// Unavailable wraps a backend failure so it matches ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func isUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

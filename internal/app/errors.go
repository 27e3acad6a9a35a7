package service

import (
	"errors"

	"github.com/okian/kudos/internal/domain/model"
)

// Sentinel kinds for the asynchronous intake.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("event queue full")
)

// errorKind labels err for metrics and spans.
func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, model.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrBackpressure):
		return "backpressure"
	default:
		return "internal"
	}
}

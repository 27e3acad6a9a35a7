package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/kudos/internal/app"
	"github.com/okian/kudos/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("unavailable")
)

// NewKind reports kind for op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind reports kind for op with the underlying cause attached.
func WrapKind(op string, kind, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// Wrap prefixes err with op.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInsufficientPoints):
		return http.StatusBadRequest, "insufficient_points"
	case errors.Is(err, model.ErrInvalidArgument), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrBackpressure), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case errors.Is(err, model.ErrStoreUnavailable), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError writes err with the status its kind maps to.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	writeError(w, status, code, Wrap(op, err))
}

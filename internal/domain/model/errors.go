package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared by the progression engine. Callers match them
// with errors.Is; concrete errors wrap one of these with context.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInsufficientPoints is returned when a redemption exceeds the balance.
	ErrInsufficientPoints = fmt.Errorf("%w: insufficient points", ErrInvalidArgument)
)

package model

import (
	"fmt"
	"math"
	"time"
)

// EventKind names what happened in a progression event.
type EventKind string

// Supported event kinds.
const (
	KindPointsAwarded EventKind = "points_awarded"
	KindBadgeProgress EventKind = "badge_progress"
	KindTaskCompleted EventKind = "task_completed"
)

// Event is an asynchronous progression event submitted by clients.
// Fields mirror the OpenAPI schema for /events.
type Event struct {
	EventID   string    // unique id for idempotency
	Kind      EventKind // what happened
	UserID    string    // subject user
	GoalID    string    // goal for task_completed
	BadgeType BadgeType // badge for badge_progress
	Amount    int64     // points or progress increment
	TS        time.Time // event timestamp
}

// Validate checks that the fields required by the event kind are present.
func (e Event) Validate() error {
	if err := ValidateID("user_id", e.UserID); err != nil {
		return err
	}
	switch e.Kind {
	case KindPointsAwarded:
		if e.Amount <= 0 {
			return invalid("amount must be positive")
		}
	case KindBadgeProgress:
		if err := ValidateID("badge_type", string(e.BadgeType)); err != nil {
			return err
		}
		if e.Amount <= 0 {
			return invalid("amount must be positive")
		}
		if e.Amount > math.MaxInt {
			return invalid("amount exceeds the progress range")
		}
	case KindTaskCompleted:
		if err := ValidateID("goal_id", e.GoalID); err != nil {
			return err
		}
	default:
		return invalid("unknown event kind " + string(e.Kind))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

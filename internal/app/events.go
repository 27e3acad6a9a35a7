package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	eventqueue "github.com/okian/kudos/internal/adapters/mq/queue"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/internal/domain/types"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

// SeenAndRecord atomically checks if an event id was seen and records it if
// not. Before Start there is no dedupe cache and every id reads as unseen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	if s.deduper == nil {
		return false
	}
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord removes an event ID from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	if s.deduper == nil {
		return
	}
	s.deduper.Unrecord(ctx, id)
}

// Enqueue validates e and queues it for the workers. An empty EventID is
// replaced with a random one. A redelivered ID is acknowledged as a
// duplicate without being queued. A full queue fails with ErrBackpressure
// and forgets the ID so the client can retry.
func (s *Service) Enqueue(ctx context.Context, e model.Event) (types.Receipt, error) { //nolint:gocritic // hugeParam
	if err := e.Validate(); err != nil {
		return types.Receipt{}, err
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.TS.IsZero() {
		e.TS = s.now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.Receipt{}, ErrNotStarted
	}

	if s.SeenAndRecord(ctx, e.EventID) {
		s.logger.Debug(ctx, "duplicate event detected, skipping", logger.String("event_id", e.EventID))
		return types.Receipt{EventID: e.EventID, Duplicate: true}, nil
	}

	if err := s.eventQueue.Enqueue(ctx, e); err != nil {
		s.Unrecord(ctx, e.EventID)
		if errors.Is(err, eventqueue.ErrFull) {
			return types.Receipt{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		if errors.Is(err, eventqueue.ErrClosed) {
			return types.Receipt{}, ErrNotStarted
		}
		return types.Receipt{}, err
	}
	return types.Receipt{EventID: e.EventID}, nil
}

// Handle applies one queued event. Events that fail because the store is
// unavailable are forgotten by the deduper so a redelivery is applied.
func (s *Service) Handle(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam
	if err := e.Validate(); err != nil {
		return err
	}
	var err error
	switch e.Kind {
	case model.KindPointsAwarded:
		_, err = s.AwardPoints(ctx, e.UserID, e.Amount)
	case model.KindBadgeProgress:
		_, err = s.OnBadgeEvent(ctx, e.UserID, e.BadgeType, int(e.Amount))
	case model.KindTaskCompleted:
		_, err = s.OnGoalTaskCompleted(ctx, e.UserID, e.GoalID, e.TS)
	default:
		err = fmt.Errorf("%w: unknown event kind %q", model.ErrInvalidArgument, string(e.Kind))
	}
	if err != nil && errors.Is(err, model.ErrStoreUnavailable) {
		s.Unrecord(ctx, e.EventID)
	}
	return err
}

// Package streak counts consecutive goal activities per user and goal.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

// DefaultWindow is the longest gap between activities that keeps a streak.
const DefaultWindow = 24 * time.Hour

// Apply records an activity at at on rec. An activity within window of the
// previous one extends the streak; a longer gap restarts it at 1. An
// activity at the same instant as the previous one also extends it. An
// activity before the previous one is rejected.
func Apply(rec model.StreakRecord, at time.Time, window time.Duration) (model.StreakRecord, bool, error) {
	at = at.UTC()
	reset := false
	switch {
	case rec.LastActivityAt == nil:
		rec.CurrentStreak = 1
	case at.Before(*rec.LastActivityAt):
		return rec, false, fmt.Errorf("%w: activity at %s precedes last activity at %s",
			model.ErrInvalidArgument, at.Format(time.RFC3339), rec.LastActivityAt.Format(time.RFC3339))
	case at.Sub(*rec.LastActivityAt) <= window:
		rec.CurrentStreak++
	default:
		rec.CurrentStreak = 1
		reset = true
	}
	if rec.CurrentStreak > rec.BestStreak {
		rec.BestStreak = rec.CurrentStreak
	}
	rec.LastActivityAt = &at
	return rec, reset, nil
}

// Tracker persists streak records.
type Tracker struct {
	store  repository.Store
	window time.Duration
	now    func() time.Time
	logger logger.Logger
}

// New creates a Tracker.
func New(store repository.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		window: DefaultWindow,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the continuity window.
func (t *Tracker) Window() time.Duration { return t.window }

func validate(userID, goalID string) error {
	if err := model.ValidateID("user id", userID); err != nil {
		return err
	}
	return model.ValidateID("goal id", goalID)
}

// Activity is a pending streak update. It can run on its own through
// RecordActivity or join a larger atomic update through Ref and Apply.
type Activity struct {
	tracker *Tracker
	userID  string
	goalID  string
	at      time.Time

	// Record holds the streak after a successful Apply.
	Record model.StreakRecord
	reset  bool
}

// NewActivity prepares an activity for (userID, goalID) at at. A zero at
// means now.
func (t *Tracker) NewActivity(userID, goalID string, at time.Time) (*Activity, error) {
	if err := validate(userID, goalID); err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = t.now()
	}
	return &Activity{tracker: t, userID: userID, goalID: goalID, at: at}, nil
}

// Ref is the store reference of the streak record.
func (a *Activity) Ref() repository.Ref {
	return repository.Ref{Collection: repository.StreakRecords, Key: model.StreakKey(a.userID, a.goalID)}
}

// Apply computes the next encoding of the stored record cur. It may run more
// than once when the store retries; only the last run counts.
func (a *Activity) Apply(cur []byte) ([]byte, error) {
	prev, ok, err := repository.Decode[model.StreakRecord](cur)
	if err != nil {
		return nil, err
	}
	if !ok {
		prev = model.StreakRecord{UserID: a.userID, GoalID: a.goalID}
	}
	if a.Record, a.reset, err = Apply(prev, a.at, a.tracker.window); err != nil {
		return nil, err
	}
	return repository.Encode(a.Record)
}

// Committed reports a persisted activity.
func (a *Activity) Committed(ctx context.Context) {
	metrics.RecordStreakActivity()
	if a.reset {
		metrics.RecordStreakReset()
		a.tracker.logger.Debug(ctx, "streak reset",
			logger.String("user_id", a.userID),
			logger.String("goal_id", a.goalID),
			logger.Int("best", a.Record.BestStreak),
		)
	}
}

// RecordActivity applies an activity for (userID, goalID). A zero at means
// now. An out-of-order activity fails and leaves the record unchanged.
func (t *Tracker) RecordActivity(ctx context.Context, userID, goalID string, at time.Time) (model.StreakRecord, error) {
	a, err := t.NewActivity(userID, goalID, at)
	if err != nil {
		return model.StreakRecord{}, err
	}
	ref := a.Ref()
	if _, err := t.store.AtomicUpdate(ctx, ref.Collection, ref.Key, a.Apply); err != nil {
		return model.StreakRecord{}, err
	}
	a.Committed(ctx)
	return a.Record, nil
}

// Get returns the streak for (userID, goalID) or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, userID, goalID string) (model.StreakRecord, error) {
	if err := validate(userID, goalID); err != nil {
		return model.StreakRecord{}, err
	}
	raw, err := t.store.Get(ctx, repository.StreakRecords, model.StreakKey(userID, goalID))
	if err != nil {
		return model.StreakRecord{}, err
	}
	rec, _, err := repository.Decode[model.StreakRecord](raw)
	return rec, err
}

// List returns the user's streaks ordered by goal ID.
func (t *Tracker) List(ctx context.Context, userID string) ([]model.StreakRecord, error) {
	if err := model.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	recs, err := t.store.List(ctx, repository.StreakRecords, model.UserPrefix(userID))
	if err != nil {
		return nil, err
	}
	return repository.DecodeAll[model.StreakRecord](recs)
}

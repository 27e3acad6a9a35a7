package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/okian/kudos/internal/domain/badge"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/internal/domain/points"
	"github.com/okian/kudos/internal/domain/types"
	"github.com/okian/kudos/pkg/logger"
)

// TaskResult is the outcome of a completed goal task.
type TaskResult struct {
	Streak model.StreakRecord `json:"streak"`
	// Milestone is set when the streak length counted toward consistency_master.
	Milestone bool `json:"milestone"`
	// Badge is the consistency_master transition, when there was one.
	Badge *badge.Transition `json:"badge,omitempty"`
}

// Levels exposes the threshold table.
func (s *Service) Levels() []int64 { return s.table.Thresholds() }

// AwardPoints credits amount to the user.
func (s *Service) AwardPoints(ctx context.Context, userID string, amount int64) (acct model.PointsAccount, err error) {
	ctx, end := begin(ctx, "award_points", userAttr(userID), attribute.Int64("kudos.amount", amount))
	defer end(&err)
	return s.ledger.Award(ctx, userID, amount)
}

// RedeemPoints debits amount from the user.
func (s *Service) RedeemPoints(ctx context.Context, userID string, amount int64) (acct model.PointsAccount, err error) {
	ctx, end := begin(ctx, "redeem_points", userAttr(userID), attribute.Int64("kudos.amount", amount))
	defer end(&err)
	return s.ledger.Redeem(ctx, userID, amount)
}

// Balance returns the user's account, creating it on first read.
func (s *Service) Balance(ctx context.Context, userID string) (acct model.PointsAccount, err error) {
	ctx, end := begin(ctx, "balance", userAttr(userID))
	defer end(&err)
	return s.ledger.Balance(ctx, userID)
}

// OnBadgeEvent records badge progress for the user.
func (s *Service) OnBadgeEvent(ctx context.Context, userID string, t model.BadgeType, increment int) (tr badge.Transition, err error) {
	ctx, end := begin(ctx, "badge_progress", userAttr(userID),
		attribute.String("kudos.badge_type", string(t)),
		attribute.Int("kudos.increment", increment),
	)
	defer end(&err)
	return s.badges.RecordProgress(ctx, userID, t, increment)
}

// AwardBadge grants or upgrades a badge.
func (s *Service) AwardBadge(ctx context.Context, userID string, t model.BadgeType, opts ...badge.AwardOption) (tr badge.Transition, err error) {
	ctx, end := begin(ctx, "award_badge", userAttr(userID), attribute.String("kudos.badge_type", string(t)))
	defer end(&err)
	return s.badges.AwardNewBadge(ctx, userID, t, opts...)
}

// GetBadge returns one badge or ErrNotFound.
func (s *Service) GetBadge(ctx context.Context, userID string, t model.BadgeType) (b model.Badge, err error) {
	ctx, end := begin(ctx, "get_badge", userAttr(userID), attribute.String("kudos.badge_type", string(t)))
	defer end(&err)
	return s.badges.Get(ctx, userID, t)
}

// GetStreak returns one streak or ErrNotFound.
func (s *Service) GetStreak(ctx context.Context, userID, goalID string) (rec model.StreakRecord, err error) {
	ctx, end := begin(ctx, "get_streak", userAttr(userID), attribute.String("kudos.goal_id", goalID))
	defer end(&err)
	return s.streaks.Get(ctx, userID, goalID)
}

// OnGoalTaskCompleted records goal activity at at (zero means now). When
// the resulting streak length is a milestone, one unit of consistency_master
// progress is recorded. With no milestones configured every activity counts.
// The streak, the badge and any reward commit together: a failure leaves all
// of them unchanged.
func (s *Service) OnGoalTaskCompleted(ctx context.Context, userID, goalID string, at time.Time) (res TaskResult, err error) {
	ctx, end := begin(ctx, "task_completed", userAttr(userID), attribute.String("kudos.goal_id", goalID))
	defer end(&err)

	act, err := s.streaks.NewActivity(userID, goalID, at)
	if err != nil {
		return TaskResult{}, err
	}
	tr, credited, err := s.badges.RecordProgressWith(ctx, userID, model.ConsistencyMaster, act.Ref(),
		func(cur []byte) ([]byte, int, error) {
			next, err := act.Apply(cur)
			if err != nil {
				return nil, 0, err
			}
			if !s.isMilestone(act.Record.CurrentStreak) {
				return next, 0, nil
			}
			return next, 1, nil
		})
	if err != nil {
		return TaskResult{}, err
	}
	act.Committed(ctx)

	res.Streak = act.Record
	if credited {
		res.Milestone = true
		res.Badge = &tr
		s.logger.Debug(ctx, "streak milestone credited",
			logger.String("user_id", userID),
			logger.String("goal_id", goalID),
			logger.Int("streak", act.Record.CurrentStreak),
		)
	}
	return res, nil
}

func (s *Service) isMilestone(streak int) bool {
	if len(s.milestones) == 0 {
		return true
	}
	_, ok := s.milestones[streak]
	return ok
}

// GetSnapshot assembles the user's points, badges and streaks. It never
// creates records; a user without an account reads as level 1 with 0 points.
func (s *Service) GetSnapshot(ctx context.Context, userID string) (snap model.Snapshot, err error) {
	ctx, end := begin(ctx, "snapshot", userAttr(userID))
	defer end(&err)

	if err := model.ValidateID("user id", userID); err != nil {
		return model.Snapshot{}, err
	}

	var (
		acct    model.PointsAccount
		badges  []model.Badge
		streaks []model.StreakRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.ledger.Peek(gctx, userID)
		if errors.Is(err, model.ErrNotFound) {
			acct = points.NewAccount(userID)
			return nil
		}
		acct = a
		return err
	})
	g.Go(func() error {
		var err error
		badges, err = s.badges.List(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		streaks, err = s.streaks.List(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}

	now := s.now()
	snap = model.Snapshot{
		UserID:  userID,
		Points:  acct.Points,
		Level:   acct.Level,
		Badges:  make([]model.BadgeView, 0, len(badges)),
		Streaks: streaks,
	}
	if next, ok := s.table.NextThreshold(acct.Level); ok {
		snap.NextLevelAt = next
	}
	for _, b := range badges {
		snap.Badges = append(snap.Badges, model.BadgeView{Badge: b, Active: b.Active(now)})
	}
	if snap.Streaks == nil {
		snap.Streaks = []model.StreakRecord{}
	}
	return snap, nil
}

// Leaderboard returns the top n accounts with 1-based ranks.
func (s *Service) Leaderboard(ctx context.Context, n int) (entries []types.Entry, err error) {
	ctx, end := begin(ctx, "leaderboard", attribute.Int("kudos.limit", n))
	defer end(&err)

	top, err := s.ledger.Top(ctx, n)
	if err != nil {
		return nil, err
	}
	entries = make([]types.Entry, len(top))
	for i, a := range top {
		entries[i] = types.Entry{Rank: i + 1, UserID: a.UserID, Points: a.Points, Level: a.Level}
	}
	return entries, nil
}

// SweepExpired removes badges that expired before now (zero means the
// service clock).
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (n int, err error) {
	ctx, end := begin(ctx, "sweep_expired")
	defer end(&err)
	if now.IsZero() {
		now = s.now()
	}
	return s.badges.SweepExpired(ctx, now)
}

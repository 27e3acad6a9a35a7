// Package badge implements the bronze, silver and gold badge state machine.
package badge

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/domain/levels"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/internal/domain/points"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

// Transition is the outcome of a badge mutation.
type Transition struct {
	Badge model.Badge `json:"badge"`
	// Account is set when points were credited.
	Account        *model.PointsAccount `json:"account,omitempty"`
	LevelUps       int                  `json:"level_ups"`
	PointsCredited int64                `json:"points_credited"`
	Created        bool                 `json:"created"`
	AlreadyMax     bool                 `json:"already_max"`
}

// Machine applies badge progress and awards. A level-up and its points
// credit are written in one atomic update over the badge and account keys.
type Machine struct {
	store   repository.Store
	table   *levels.Table
	catalog *Catalog
	now     func() time.Time
	logger  logger.Logger
}

// New creates a Machine.
func New(store repository.Store, table *levels.Table, catalog *Catalog, opts ...Option) *Machine {
	m := &Machine{
		store:   store,
		table:   table,
		catalog: catalog,
		now:     time.Now,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.table == nil {
		m.table = levels.Default()
	}
	if m.catalog == nil {
		m.catalog = NewCatalog()
	}
	return m
}

// Catalog returns the machine's badge rules.
func (m *Machine) Catalog() *Catalog { return m.catalog }

// Advance adds increment to b and performs every level-up it earns.
// Leftover progress carries into the next level. At gold progress is capped
// just below the goal and nothing more is earned. It returns the new badge, the
// number of level-ups and the points those level-ups are worth.
func Advance(b model.Badge, increment int, reward int64, at time.Time) (model.Badge, int, int64, error) {
	if increment <= 0 {
		return b, 0, 0, fmt.Errorf("%w: progress increment must be positive, got %d", model.ErrInvalidArgument, increment)
	}
	if _, err := b.Level.Next(); err != nil {
		return b, 0, 0, err
	}
	if b.Progress > math.MaxInt-increment {
		return b, 0, 0, fmt.Errorf("%w: progress overflow", model.ErrInvalidArgument)
	}
	goal := b.Goal
	if goal <= 0 {
		goal = defaultGoal
		b.Goal = goal
	}

	ups := 0
	b.Progress += increment
	for b.Progress >= goal && b.Level != model.Gold {
		next, err := b.Level.Next()
		if err != nil {
			return b, 0, 0, err
		}
		b.Level = next
		b.Progress -= goal
		ups++
	}
	if b.Level == model.Gold && b.Progress >= goal {
		b.Progress = goal - 1
	}
	b.UpdatedAt = at.UTC()
	return b, ups, int64(ups) * reward, nil
}

func (m *Machine) newBadge(userID string, t model.BadgeType, now time.Time) model.Badge {
	b := model.Badge{
		UserID:    userID,
		Type:      t,
		Level:     model.Bronze,
		Goal:      m.catalog.Goal(t),
		AwardedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if ttl, ok := m.catalog.TTL(t); ok {
		exp := now.Add(ttl).UTC()
		b.ExpiresAt = &exp
	}
	return b
}

func refs(userID string, t model.BadgeType) []repository.Ref {
	return []repository.Ref{
		{Collection: repository.Badges, Key: model.BadgeKey(userID, t)},
		{Collection: repository.PointsAccounts, Key: userID},
	}
}

func validate(userID string, t model.BadgeType) error {
	if err := model.ValidateID("user id", userID); err != nil {
		return err
	}
	return model.ValidateID("badge type", string(t))
}

// credit folds a reward into the stored account and returns the new
// encoding plus the decoded account.
func (m *Machine) credit(userID string, raw []byte, amount int64, at time.Time) ([]byte, *model.PointsAccount, error) {
	acct, ok, err := repository.Decode[model.PointsAccount](raw)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		acct = points.NewAccount(userID)
	}
	if acct, err = points.Credit(acct, amount, m.table, at); err != nil {
		return nil, nil, err
	}
	enc, err := repository.Encode(acct)
	if err != nil {
		return nil, nil, err
	}
	return enc, &acct, nil
}

// progress advances the badge encoded in curBadge by increment and credits
// the reward to the account encoded in curAcct. A nil output leaves the
// account untouched.
func (m *Machine) progress(userID string, t model.BadgeType, increment int, curBadge, curAcct []byte) (Transition, []byte, []byte, error) {
	var tr Transition
	now := m.now()
	b, ok, err := repository.Decode[model.Badge](curBadge)
	if err != nil {
		return tr, nil, nil, err
	}
	if !ok {
		b = m.newBadge(userID, t, now)
		tr.Created = true
	}
	if tr.Badge, tr.LevelUps, tr.PointsCredited, err = Advance(b, increment, m.catalog.Reward(t), now); err != nil {
		return tr, nil, nil, err
	}
	encBadge, err := repository.Encode(tr.Badge)
	if err != nil {
		return tr, nil, nil, err
	}
	var encAcct []byte
	if tr.PointsCredited > 0 {
		if encAcct, tr.Account, err = m.credit(userID, curAcct, tr.PointsCredited, now); err != nil {
			return tr, nil, nil, err
		}
	}
	return tr, encBadge, encAcct, nil
}

// RecordProgress adds increment to the user's badge of type t, creating it
// at bronze when absent, and credits the type's reward per level-up.
func (m *Machine) RecordProgress(ctx context.Context, userID string, t model.BadgeType, increment int) (Transition, error) {
	if err := validate(userID, t); err != nil {
		return Transition{}, err
	}
	if increment <= 0 {
		return Transition{}, fmt.Errorf("%w: progress increment must be positive, got %d", model.ErrInvalidArgument, increment)
	}

	var tr Transition
	_, err := m.store.AtomicUpdateMany(ctx, refs(userID, t), func(cur [][]byte) ([][]byte, error) {
		var (
			out = make([][]byte, 2)
			err error
		)
		tr, out[0], out[1], err = m.progress(userID, t, increment, cur[0], cur[1])
		return out, err
	})
	if err != nil {
		return Transition{}, err
	}
	m.committed(ctx, tr)
	return tr, nil
}

// StepFunc updates a record that commits together with a badge update. It
// returns the record's new encoding and the badge progress to apply; zero
// progress leaves the badge and account untouched.
type StepFunc func(cur []byte) (next []byte, increment int, err error)

// RecordProgressWith runs step on the record at ref and applies the
// progress it asks for to the user's badge of type t. The record, the badge
// and the account are written as one atomic unit, so either all of them
// change or none do. The returned flag reports whether progress was applied.
func (m *Machine) RecordProgressWith(ctx context.Context, userID string, t model.BadgeType, ref repository.Ref, step StepFunc) (Transition, bool, error) {
	if err := validate(userID, t); err != nil {
		return Transition{}, false, err
	}

	var (
		tr      Transition
		applied bool
	)
	_, err := m.store.AtomicUpdateMany(ctx, append(refs(userID, t), ref), func(cur [][]byte) ([][]byte, error) {
		tr, applied = Transition{}, false
		out := make([][]byte, 3)
		next, increment, err := step(cur[2])
		if err != nil {
			return nil, err
		}
		out[2] = next
		if increment < 0 {
			return nil, fmt.Errorf("%w: progress increment must be positive, got %d", model.ErrInvalidArgument, increment)
		}
		if increment == 0 {
			return out, nil
		}
		if tr, out[0], out[1], err = m.progress(userID, t, increment, cur[0], cur[1]); err != nil {
			return nil, err
		}
		applied = true
		return out, nil
	})
	if err != nil {
		return Transition{}, false, err
	}
	if applied {
		m.committed(ctx, tr)
	}
	return tr, applied, nil
}

// AwardOption configures AwardNewBadge.
type AwardOption func(*awardConfig)

type awardConfig struct {
	level     model.BadgeLevel
	goal      int
	expiresAt *time.Time
}

// WithLevel sets the level of a newly created badge (bronze by default).
func WithLevel(l model.BadgeLevel) AwardOption {
	return func(c *awardConfig) { c.level = l }
}

// WithGoal overrides the catalog goal of a newly created badge.
func WithGoal(goal int) AwardOption {
	return func(c *awardConfig) { c.goal = goal }
}

// WithExpiresAt sets the badge expiry, replacing any catalog TTL.
func WithExpiresAt(at time.Time) AwardOption {
	return func(c *awardConfig) {
		exp := at.UTC()
		c.expiresAt = &exp
	}
}

// AwardNewBadge grants the user a badge of type t. An absent badge is
// created at the requested level without a reward. An existing badge moves
// up one level, keeps its progress and credits the reward. A gold badge is
// left alone and reported with AlreadyMax.
func (m *Machine) AwardNewBadge(ctx context.Context, userID string, t model.BadgeType, opts ...AwardOption) (Transition, error) {
	if err := validate(userID, t); err != nil {
		return Transition{}, err
	}
	cfg := awardConfig{level: model.Bronze}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.level.Valid() {
		return Transition{}, fmt.Errorf("%w: unknown badge level %q", model.ErrInvalidArgument, string(cfg.level))
	}
	if cfg.goal < 0 {
		return Transition{}, fmt.Errorf("%w: goal must be positive, got %d", model.ErrInvalidArgument, cfg.goal)
	}

	var tr Transition
	_, err := m.store.AtomicUpdateMany(ctx, refs(userID, t), func(cur [][]byte) ([][]byte, error) {
		tr = Transition{}
		now := m.now()
		b, ok, err := repository.Decode[model.Badge](cur[0])
		if err != nil {
			return nil, err
		}
		out := make([][]byte, 2)

		switch {
		case !ok:
			b = m.newBadge(userID, t, now)
			b.Level = cfg.level
			if cfg.goal > 0 {
				b.Goal = cfg.goal
			}
			if cfg.expiresAt != nil {
				b.ExpiresAt = cfg.expiresAt
			}
			tr.Created = true
		case b.Level == model.Gold:
			tr.Badge = b
			tr.AlreadyMax = true
			return out, nil
		default:
			next, err := b.Level.Next()
			if err != nil {
				return nil, err
			}
			b.Level = next
			b.UpdatedAt = now.UTC()
			if cfg.expiresAt != nil {
				b.ExpiresAt = cfg.expiresAt
			}
			tr.LevelUps = 1
			tr.PointsCredited = m.catalog.Reward(t)
			if tr.PointsCredited > 0 {
				if out[1], tr.Account, err = m.credit(userID, cur[1], tr.PointsCredited, now); err != nil {
					return nil, err
				}
			}
		}

		tr.Badge = b
		if out[0], err = repository.Encode(b); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return Transition{}, err
	}
	m.committed(ctx, tr)
	return tr, nil
}

func (m *Machine) committed(ctx context.Context, tr Transition) {
	if tr.Created {
		metrics.RecordBadgeAwarded(string(tr.Badge.Type))
	}
	if tr.LevelUps == 0 {
		return
	}
	metrics.RecordBadgeLevelUps(string(tr.Badge.Type), tr.LevelUps)
	metrics.RecordPointsAwarded(tr.PointsCredited)
	m.logger.Info(ctx, "badge level up",
		logger.String("user_id", tr.Badge.UserID),
		logger.String("badge_type", string(tr.Badge.Type)),
		logger.String("level", string(tr.Badge.Level)),
		logger.Int64("points", tr.PointsCredited),
	)
}

// SweepExpired deletes every badge whose expiry is before now and returns
// how many were removed.
func (m *Machine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := m.store.DeleteWhere(ctx, repository.Badges, func(_ string, value []byte) bool {
		b, ok, err := repository.Decode[model.Badge](value)
		return err == nil && ok && b.Expired(now)
	})
	if err != nil {
		return n, err
	}
	metrics.RecordBadgesExpired(n)
	if n > 0 {
		m.logger.Info(ctx, "expired badges removed", logger.Int("count", n))
	}
	return n, nil
}

// Get returns the user's badge of type t or ErrNotFound.
func (m *Machine) Get(ctx context.Context, userID string, t model.BadgeType) (model.Badge, error) {
	if err := validate(userID, t); err != nil {
		return model.Badge{}, err
	}
	raw, err := m.store.Get(ctx, repository.Badges, model.BadgeKey(userID, t))
	if err != nil {
		return model.Badge{}, err
	}
	b, _, err := repository.Decode[model.Badge](raw)
	return b, err
}

// List returns the user's badges ordered by type.
func (m *Machine) List(ctx context.Context, userID string) ([]model.Badge, error) {
	if err := model.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	recs, err := m.store.List(ctx, repository.Badges, model.UserPrefix(userID))
	if err != nil {
		return nil, err
	}
	return repository.DecodeAll[model.Badge](recs)
}

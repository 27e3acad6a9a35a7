// Package points maintains per-user point balances and derived levels.
package points

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/domain/levels"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

// Ledger reads and mutates points accounts. Every mutation is a single
// atomic store update on the user's account key.
type Ledger struct {
	store  repository.Store
	table  *levels.Table
	now    func() time.Time
	logger logger.Logger
}

// New creates a Ledger over store using table to derive levels.
func New(store repository.Store, table *levels.Table, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		table:  table,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.table == nil {
		l.table = levels.Default()
	}
	return l
}

// Table returns the threshold table used by the ledger.
func (l *Ledger) Table() *levels.Table { return l.table }

// NewAccount returns the zero account a user starts with.
func NewAccount(userID string) model.PointsAccount {
	return model.PointsAccount{UserID: userID, Level: 1}
}

// Credit adds amount to acct and recomputes its level. It does not touch
// the store, so callers can fold a credit into a larger transaction.
// A zero amount leaves points and level unchanged but still stamps at.
func Credit(acct model.PointsAccount, amount int64, table *levels.Table, at time.Time) (model.PointsAccount, error) {
	if amount < 0 {
		return acct, fmt.Errorf("%w: credit amount must not be negative", model.ErrInvalidArgument)
	}
	if acct.Points > math.MaxInt64-amount {
		return acct, fmt.Errorf("%w: points overflow", model.ErrInvalidArgument)
	}
	return settle(acct, acct.Points+amount, table, at)
}

// debit removes amount from acct. The balance never goes below zero.
func debit(acct model.PointsAccount, amount int64, table *levels.Table, at time.Time) (model.PointsAccount, error) {
	if acct.Points < amount {
		return acct, fmt.Errorf("%w: balance %d, requested %d", model.ErrInsufficientPoints, acct.Points, amount)
	}
	return settle(acct, acct.Points-amount, table, at)
}

func settle(acct model.PointsAccount, points int64, table *levels.Table, at time.Time) (model.PointsAccount, error) {
	level, err := table.LevelFor(points)
	if err != nil {
		return acct, err
	}
	acct.Points = points
	acct.Level = level
	acct.LastActivityAt = at.UTC()
	return acct, nil
}

// Award credits amount (> 0) to userID's account, creating it if needed.
func (l *Ledger) Award(ctx context.Context, userID string, amount int64) (model.PointsAccount, error) {
	if err := model.ValidateID("user id", userID); err != nil {
		return model.PointsAccount{}, err
	}
	if amount <= 0 {
		return model.PointsAccount{}, fmt.Errorf("%w: award amount must be positive, got %d", model.ErrInvalidArgument, amount)
	}

	var before, after model.PointsAccount
	_, err := l.store.AtomicUpdate(ctx, repository.PointsAccounts, userID, func(cur []byte) ([]byte, error) {
		acct, err := l.decode(userID, cur)
		if err != nil {
			return nil, err
		}
		before = acct
		if after, err = Credit(acct, amount, l.table, l.now()); err != nil {
			return nil, err
		}
		return repository.Encode(after)
	})
	if err != nil {
		return model.PointsAccount{}, err
	}

	metrics.RecordPointsAwarded(amount)
	metrics.RecordLevelUps(after.Level - before.Level)
	if after.Level > before.Level {
		l.logger.Info(ctx, "level up",
			logger.String("user_id", userID),
			logger.Int("from", before.Level),
			logger.Int("to", after.Level),
		)
	}
	return after, nil
}

// Redeem debits amount (> 0) from userID's account. A short balance fails
// with ErrInsufficientPoints and leaves the account unchanged. The level is
// recomputed and may drop.
func (l *Ledger) Redeem(ctx context.Context, userID string, amount int64) (model.PointsAccount, error) {
	if err := model.ValidateID("user id", userID); err != nil {
		return model.PointsAccount{}, err
	}
	if amount <= 0 {
		return model.PointsAccount{}, fmt.Errorf("%w: redeem amount must be positive, got %d", model.ErrInvalidArgument, amount)
	}

	var after model.PointsAccount
	_, err := l.store.AtomicUpdate(ctx, repository.PointsAccounts, userID, func(cur []byte) ([]byte, error) {
		acct, err := l.decode(userID, cur)
		if err != nil {
			return nil, err
		}
		if after, err = debit(acct, amount, l.table, l.now()); err != nil {
			return nil, err
		}
		return repository.Encode(after)
	})
	if err != nil {
		return model.PointsAccount{}, err
	}
	metrics.RecordPointsRedeemed(amount)
	return after, nil
}

// Balance returns userID's account, creating a zero account on first read.
func (l *Ledger) Balance(ctx context.Context, userID string) (model.PointsAccount, error) {
	if err := model.ValidateID("user id", userID); err != nil {
		return model.PointsAccount{}, err
	}
	raw, err := l.store.AtomicUpdate(ctx, repository.PointsAccounts, userID, func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, nil
		}
		return repository.Encode(NewAccount(userID))
	})
	if err != nil {
		return model.PointsAccount{}, err
	}
	return l.decode(userID, raw)
}

// Peek returns userID's account without creating it. A missing account
// yields ErrNotFound.
func (l *Ledger) Peek(ctx context.Context, userID string) (model.PointsAccount, error) {
	if err := model.ValidateID("user id", userID); err != nil {
		return model.PointsAccount{}, err
	}
	raw, err := l.store.Get(ctx, repository.PointsAccounts, userID)
	if err != nil {
		return model.PointsAccount{}, err
	}
	return l.decode(userID, raw)
}

// Top returns up to n accounts ordered by points descending, then user ID.
func (l *Ledger) Top(ctx context.Context, n int) ([]model.PointsAccount, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", model.ErrInvalidArgument, n)
	}
	accounts, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Points != accounts[j].Points {
			return accounts[i].Points > accounts[j].Points
		}
		return accounts[i].UserID < accounts[j].UserID
	})
	if len(accounts) > n {
		accounts = accounts[:n]
	}
	return accounts, nil
}

// Count returns the number of accounts.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	recs, err := l.store.List(ctx, repository.PointsAccounts, "")
	if err != nil {
		return 0, err
	}
	metrics.UpdateTotalAccounts(len(recs))
	return len(recs), nil
}

func (l *Ledger) all(ctx context.Context) ([]model.PointsAccount, error) {
	recs, err := l.store.List(ctx, repository.PointsAccounts, "")
	if err != nil {
		return nil, err
	}
	return repository.DecodeAll[model.PointsAccount](recs)
}

// decode reads a stored account; nil yields a fresh account for userID.
func (l *Ledger) decode(userID string, raw []byte) (model.PointsAccount, error) {
	acct, ok, err := repository.Decode[model.PointsAccount](raw)
	if err != nil {
		return model.PointsAccount{}, err
	}
	if !ok {
		return NewAccount(userID), nil
	}
	return acct, nil
}

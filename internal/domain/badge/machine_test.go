package badge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/domain/badge"
	"github.com/okian/kudos/internal/domain/levels"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/internal/domain/points"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// failingCommit runs the update function but reports a failure instead of
// committing, the way a dropped connection would.
type failingCommit struct {
	repository.Store
}

var errCommit = repository.Unavailable("commit", errors.New("connection reset"))

func (f failingCommit) AtomicUpdateMany(ctx context.Context, refs []repository.Ref, fn repository.UpdateManyFunc) ([][]byte, error) {
	return f.Store.AtomicUpdateMany(ctx, refs, func(cur [][]byte) ([][]byte, error) {
		if _, err := fn(cur); err != nil {
			return nil, err
		}
		return nil, errCommit
	})
}

func TestAdvance(t *testing.T) {
	Convey("Given a bronze badge with goal 5", t, func() {
		b := model.Badge{UserID: "u1", Type: model.GoalCompleted, Level: model.Bronze, Goal: 5}

		Convey("When progress 2, 2 and 2 is applied", func() {
			var (
				ups    int
				earned int64
			)
			for _, inc := range []int{2, 2, 2} {
				var u int
				var e int64
				var err error
				b, u, e, err = badge.Advance(b, inc, 50, fixedNow)
				So(err, ShouldBeNil)
				ups += u
				earned += e
			}

			Convey("Then it is silver with the overflow carried", func() {
				So(b.Level, ShouldEqual, model.Silver)
				So(b.Progress, ShouldEqual, 1)
				So(ups, ShouldEqual, 1)
				So(earned, ShouldEqual, 50)
			})
		})

		Convey("When one increment covers several goals", func() {
			next, ups, earned, err := badge.Advance(b, 12, 30, fixedNow)

			Convey("Then it climbs to gold and caps progress", func() {
				So(err, ShouldBeNil)
				So(next.Level, ShouldEqual, model.Gold)
				So(next.Progress, ShouldEqual, 2)
				So(ups, ShouldEqual, 2)
				So(earned, ShouldEqual, 60)
			})
		})

		Convey("When a gold badge receives more progress", func() {
			b.Level = model.Gold
			b.Progress = 4
			next, ups, earned, err := badge.Advance(b, 100, 50, fixedNow)

			Convey("Then it stays gold with no reward", func() {
				So(err, ShouldBeNil)
				So(next.Level, ShouldEqual, model.Gold)
				So(next.Progress, ShouldEqual, b.Goal-1)
				So(next.Progress, ShouldBeLessThan, next.Goal)
				So(ups, ShouldEqual, 0)
				So(earned, ShouldEqual, 0)
			})
		})

		Convey("When the increment is not positive", func() {
			_, _, _, err := badge.Advance(b, 0, 50, fixedNow)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When the stored level is unknown", func() {
			b.Level = "platinum"
			_, _, _, err := badge.Advance(b, 1, 50, fixedNow)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func TestRecordProgress(t *testing.T) {
	ctx := context.Background()

	Convey("Given a machine over an empty store", t, func() {
		store := repository.NewMemStore()
		table := levels.Default()
		catalog := badge.NewCatalog(badge.WithTypeGoal(model.GoalCompleted, 5))
		m := badge.New(store, table, catalog, badge.WithClock(clock))
		ledger := points.New(store, table)

		Convey("When progress 2, 2 and 2 is recorded", func() {
			var tr badge.Transition
			var err error
			for _, inc := range []int{2, 2, 2} {
				tr, err = m.RecordProgress(ctx, "u1", model.GoalCompleted, inc)
				So(err, ShouldBeNil)
			}

			Convey("Then the badge is silver and 50 points are credited", func() {
				So(tr.Badge.Level, ShouldEqual, model.Silver)
				So(tr.Badge.Progress, ShouldEqual, 1)
				So(tr.PointsCredited, ShouldEqual, 50)
				So(tr.Account, ShouldNotBeNil)
				So(tr.Account.Points, ShouldEqual, 50)

				acct, err := ledger.Peek(ctx, "u1")
				So(err, ShouldBeNil)
				So(acct.Points, ShouldEqual, 50)

				stored, err := m.Get(ctx, "u1", model.GoalCompleted)
				So(err, ShouldBeNil)
				So(stored.Level, ShouldEqual, model.Silver)
				So(stored.Progress, ShouldEqual, 1)
			})
		})

		Convey("When the first progress does not reach the goal", func() {
			tr, err := m.RecordProgress(ctx, "u1", model.GoalCompleted, 1)

			Convey("Then the badge is created at bronze and no account is touched", func() {
				So(err, ShouldBeNil)
				So(tr.Created, ShouldBeTrue)
				So(tr.Badge.Level, ShouldEqual, model.Bronze)
				So(tr.Badge.Goal, ShouldEqual, 5)
				So(tr.Account, ShouldBeNil)
				_, err = ledger.Peek(ctx, "u1")
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an unknown badge type levels up", func() {
			tr, err := m.RecordProgress(ctx, "u1", "mystery", 1)

			Convey("Then it levels with a zero reward", func() {
				So(err, ShouldBeNil)
				So(tr.Badge.Level, ShouldEqual, model.Silver)
				So(tr.PointsCredited, ShouldEqual, 0)
				So(tr.Account, ShouldBeNil)
			})
		})

		Convey("When the increment is invalid", func() {
			_, err := m.RecordProgress(ctx, "u1", model.Helper, -1)

			Convey("Then nothing is stored", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
				_, err = m.Get(ctx, "u1", model.Helper)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the commit fails during a level-up", func() {
			_, err := m.RecordProgress(ctx, "u1", model.GoalCompleted, 4)
			So(err, ShouldBeNil)

			broken := badge.New(failingCommit{store}, table, catalog, badge.WithClock(clock))
			_, err = broken.RecordProgress(ctx, "u1", model.GoalCompleted, 1)

			Convey("Then neither the badge nor the account changes", func() {
				So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)
				stored, err := m.Get(ctx, "u1", model.GoalCompleted)
				So(err, ShouldBeNil)
				So(stored.Level, ShouldEqual, model.Bronze)
				So(stored.Progress, ShouldEqual, 4)
				_, err = ledger.Peek(ctx, "u1")
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestRecordProgressWith(t *testing.T) {
	ctx := context.Background()
	side := repository.Ref{Collection: repository.StreakRecords, Key: "u1/run"}

	Convey("Given a machine and a record committed alongside the badge", t, func() {
		store := repository.NewMemStore()
		m := badge.New(store, levels.Default(), badge.NewCatalog(), badge.WithClock(clock))

		Convey("When the step asks for no progress", func() {
			tr, applied, err := m.RecordProgressWith(ctx, "u1", model.Helper, side, func(cur []byte) ([]byte, int, error) {
				return []byte(`"one"`), 0, nil
			})

			Convey("Then only the record is written", func() {
				So(err, ShouldBeNil)
				So(applied, ShouldBeFalse)
				So(tr.Badge.Type, ShouldEqual, model.BadgeType(""))
				raw, err := store.Get(ctx, side.Collection, side.Key)
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, `"one"`)
				_, err = m.Get(ctx, "u1", model.Helper)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the step asks for progress", func() {
			tr, applied, err := m.RecordProgressWith(ctx, "u1", model.Helper, side, func(cur []byte) ([]byte, int, error) {
				return []byte(`"two"`), 1, nil
			})

			Convey("Then the record, the badge and the reward are written", func() {
				So(err, ShouldBeNil)
				So(applied, ShouldBeTrue)
				So(tr.Created, ShouldBeTrue)
				So(tr.Badge.Level, ShouldEqual, model.Silver)
				So(tr.PointsCredited, ShouldEqual, 30)
				raw, err := store.Get(ctx, side.Collection, side.Key)
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, `"two"`)
			})
		})

		Convey("When the step fails", func() {
			_, _, err := m.RecordProgressWith(ctx, "u1", model.Helper, side, func(cur []byte) ([]byte, int, error) {
				return nil, 0, model.ErrInvalidArgument
			})

			Convey("Then nothing is written", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
				_, err := store.Get(ctx, side.Collection, side.Key)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the commit fails", func() {
			broken := badge.New(failingCommit{store}, levels.Default(), badge.NewCatalog(), badge.WithClock(clock))
			_, _, err := broken.RecordProgressWith(ctx, "u1", model.Helper, side, func(cur []byte) ([]byte, int, error) {
				return []byte(`"three"`), 1, nil
			})

			Convey("Then neither the record nor the badge exists", func() {
				So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)
				_, err := store.Get(ctx, side.Collection, side.Key)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				_, err = m.Get(ctx, "u1", model.Helper)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestAwardNewBadge(t *testing.T) {
	ctx := context.Background()

	Convey("Given a machine over an empty store", t, func() {
		store := repository.NewMemStore()
		m := badge.New(store, levels.Default(), badge.NewCatalog(), badge.WithClock(clock))

		Convey("When a badge is awarded for the first time", func() {
			exp := fixedNow.Add(48 * time.Hour)
			tr, err := m.AwardNewBadge(ctx, "u1", model.Helper, badge.WithGoal(3), badge.WithExpiresAt(exp))

			Convey("Then it is created at bronze without a reward", func() {
				So(err, ShouldBeNil)
				So(tr.Created, ShouldBeTrue)
				So(tr.Badge.Level, ShouldEqual, model.Bronze)
				So(tr.Badge.Goal, ShouldEqual, 3)
				So(tr.Badge.ExpiresAt.Equal(exp), ShouldBeTrue)
				So(tr.PointsCredited, ShouldEqual, 0)
			})

			Convey("Then awarding again upgrades one level and credits the reward", func() {
				_, err := m.RecordProgress(ctx, "u1", model.Helper, 2)
				So(err, ShouldBeNil)

				tr, err := m.AwardNewBadge(ctx, "u1", model.Helper)
				So(err, ShouldBeNil)
				So(tr.Created, ShouldBeFalse)
				So(tr.Badge.Level, ShouldEqual, model.Silver)
				So(tr.Badge.Progress, ShouldEqual, 2)
				So(tr.PointsCredited, ShouldEqual, 30)
				So(tr.Account.Points, ShouldEqual, 30)
			})
		})

		Convey("When a gold badge is awarded again", func() {
			_, err := m.AwardNewBadge(ctx, "u1", model.EventBadge, badge.WithLevel(model.Gold))
			So(err, ShouldBeNil)
			tr, err := m.AwardNewBadge(ctx, "u1", model.EventBadge)

			Convey("Then it is reported as already at max", func() {
				So(err, ShouldBeNil)
				So(tr.AlreadyMax, ShouldBeTrue)
				So(tr.Badge.Level, ShouldEqual, model.Gold)
				So(tr.PointsCredited, ShouldEqual, 0)
			})
		})

		Convey("When the requested level is unknown", func() {
			_, err := m.AwardNewBadge(ctx, "u1", model.Helper, badge.WithLevel("diamond"))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()

	Convey("Given badges with and without expiry", t, func() {
		store := repository.NewMemStore()
		catalog := badge.NewCatalog(badge.WithTypeTTL(model.EventBadge, time.Hour))
		m := badge.New(store, levels.Default(), catalog, badge.WithClock(clock))

		_, err := m.AwardNewBadge(ctx, "u1", model.EventBadge)
		So(err, ShouldBeNil)
		_, err = m.AwardNewBadge(ctx, "u2", model.EventBadge, badge.WithExpiresAt(fixedNow.Add(72*time.Hour)))
		So(err, ShouldBeNil)
		_, err = m.AwardNewBadge(ctx, "u1", model.Helper)
		So(err, ShouldBeNil)

		Convey("When the sweep runs after the catalog TTL", func() {
			later := fixedNow.Add(2 * time.Hour)
			n, err := m.SweepExpired(ctx, later)

			Convey("Then only the expired badge is removed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				list, err := m.List(ctx, "u1")
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 1)
				So(list[0].Type, ShouldEqual, model.Helper)
			})

			Convey("Then a second sweep removes nothing", func() {
				n, err := m.SweepExpired(ctx, later)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the sweep runs exactly at the expiry", func() {
			n, err := m.SweepExpired(ctx, fixedNow.Add(time.Hour))

			Convey("Then the badge is kept", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})
}

func TestCatalog(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		c := badge.NewCatalog()

		Convey("Then it carries the standard rewards", func() {
			So(c.Reward(model.GoalCompleted), ShouldEqual, 50)
			So(c.Reward(model.Helper), ShouldEqual, 30)
			So(c.Reward(model.MilestoneAchiever), ShouldEqual, 100)
			So(c.Reward(model.ConsistencyMaster), ShouldEqual, 75)
			So(c.Reward(model.TimeBased), ShouldEqual, 40)
			So(c.Reward(model.EventBadge), ShouldEqual, 20)
			So(c.Reward("unknown"), ShouldEqual, 0)
			So(c.Goal(model.Helper), ShouldEqual, 1)
			_, ok := c.TTL(model.Helper)
			So(ok, ShouldBeFalse)
		})

		Convey("Then overrides replace defaults", func() {
			c := badge.NewCatalog(badge.WithTypeReward(model.Helper, 5), badge.WithTypeGoal(model.Helper, 4))
			So(c.Reward(model.Helper), ShouldEqual, 5)
			So(c.Goal(model.Helper), ShouldEqual, 4)
		})
	})
}

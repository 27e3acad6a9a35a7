package points_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/domain/levels"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/internal/domain/points"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newLedger() *points.Ledger {
	return points.New(repository.NewMemStore(), levels.Default(), points.WithClock(func() time.Time { return fixedNow }))
}

func TestLedgerAward(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty ledger", t, func() {
		l := newLedger()

		Convey("When points are awarded", func() {
			acct, err := l.Award(ctx, "u1", 120)

			Convey("Then the account is created with the derived level", func() {
				So(err, ShouldBeNil)
				So(acct.UserID, ShouldEqual, "u1")
				So(acct.Points, ShouldEqual, 120)
				So(acct.Level, ShouldEqual, 2)
				So(acct.LastActivityAt, ShouldEqual, fixedNow)
			})

			Convey("Then further awards accumulate", func() {
				acct, err = l.Award(ctx, "u1", 130)
				So(err, ShouldBeNil)
				So(acct.Points, ShouldEqual, 250)
				So(acct.Level, ShouldEqual, 3)
			})
		})

		Convey("When a non-positive amount is awarded", func() {
			_, errZero := l.Award(ctx, "u1", 0)
			_, errNeg := l.Award(ctx, "u1", -5)

			Convey("Then it is rejected and nothing is stored", func() {
				So(errors.Is(errZero, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errNeg, model.ErrInvalidArgument), ShouldBeTrue)
				_, err := l.Peek(ctx, "u1")
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the user id is invalid", func() {
			_, errEmpty := l.Award(ctx, "", 10)
			_, errSlash := l.Award(ctx, "a/b", 10)

			Convey("Then it is rejected", func() {
				So(errors.Is(errEmpty, model.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(errSlash, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When many awards race on one user", func() {
			const n = 100
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = l.Award(ctx, "u1", 1)
				}()
			}
			wg.Wait()

			Convey("Then no update is lost", func() {
				acct, err := l.Balance(ctx, "u1")
				So(err, ShouldBeNil)
				So(acct.Points, ShouldEqual, n)
				So(acct.Level, ShouldEqual, 2)
			})
		})
	})
}

func TestLedgerBalance(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty ledger", t, func() {
		l := newLedger()

		Convey("When a balance is read", func() {
			acct, err := l.Balance(ctx, "u1")

			Convey("Then a zero account is created lazily", func() {
				So(err, ShouldBeNil)
				So(acct.Points, ShouldEqual, 0)
				So(acct.Level, ShouldEqual, 1)

				peeked, err := l.Peek(ctx, "u1")
				So(err, ShouldBeNil)
				So(peeked.UserID, ShouldEqual, "u1")
			})

			Convey("Then a second read returns the same account", func() {
				_, err := l.Award(ctx, "u1", 40)
				So(err, ShouldBeNil)
				again, err := l.Balance(ctx, "u1")
				So(err, ShouldBeNil)
				So(again.Points, ShouldEqual, 40)
			})
		})
	})
}

func TestLedgerRedeem(t *testing.T) {
	ctx := context.Background()

	Convey("Given an account with 300 points", t, func() {
		l := newLedger()
		_, err := l.Award(ctx, "u1", 300)
		So(err, ShouldBeNil)

		Convey("When more than the balance is redeemed", func() {
			_, err := l.Redeem(ctx, "u1", 301)

			Convey("Then it fails and the balance is unchanged", func() {
				So(errors.Is(err, model.ErrInsufficientPoints), ShouldBeTrue)
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
				acct, _ := l.Peek(ctx, "u1")
				So(acct.Points, ShouldEqual, 300)
			})
		})

		Convey("When part of the balance is redeemed", func() {
			acct, err := l.Redeem(ctx, "u1", 100)

			Convey("Then the level is recomputed", func() {
				So(err, ShouldBeNil)
				So(acct.Points, ShouldEqual, 200)
				So(acct.Level, ShouldEqual, 2)
			})
		})

		Convey("When a non-positive amount is redeemed", func() {
			_, err := l.Redeem(ctx, "u1", 0)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func TestLedgerTop(t *testing.T) {
	ctx := context.Background()

	Convey("Given several accounts", t, func() {
		l := newLedger()
		for user, amount := range map[string]int64{"carol": 50, "alice": 200, "bob": 200, "dave": 10} {
			_, err := l.Award(ctx, user, amount)
			So(err, ShouldBeNil)
		}

		Convey("When the top three are requested", func() {
			top, err := l.Top(ctx, 3)

			Convey("Then they are ordered by points then user id", func() {
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
				So(top[0].UserID, ShouldEqual, "alice")
				So(top[1].UserID, ShouldEqual, "bob")
				So(top[2].UserID, ShouldEqual, "carol")
			})
		})

		Convey("When the limit is not positive", func() {
			_, err := l.Top(ctx, 0)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When accounts are counted", func() {
			n, err := l.Count(ctx)

			Convey("Then every account is included", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)
			})
		})
	})
}

func TestCredit(t *testing.T) {
	Convey("Given the pure credit helper", t, func() {
		table := levels.Default()
		acct := points.NewAccount("u1")

		Convey("Then it adds points and derives the level", func() {
			next, err := points.Credit(acct, 1000, table, fixedNow)
			So(err, ShouldBeNil)
			So(next.Points, ShouldEqual, 1000)
			So(next.Level, ShouldEqual, 5)
			So(acct.Points, ShouldEqual, 0)
		})

		Convey("Then a zero credit keeps the balance", func() {
			next, err := points.Credit(acct, 0, table, fixedNow)
			So(err, ShouldBeNil)
			So(next.Points, ShouldEqual, 0)
			So(next.Level, ShouldEqual, 1)
		})

		Convey("Then negative credits and overflow are rejected", func() {
			_, err := points.Credit(acct, -1, table, fixedNow)
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)

			acct.Points = math.MaxInt64
			_, err = points.Credit(acct, 1, table, fixedNow)
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

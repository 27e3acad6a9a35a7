package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/kudos/internal/adapters/http/api"
	service "github.com/okian/kudos/internal/app"
	"github.com/okian/kudos/internal/client"
	"github.com/okian/kudos/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func newServer(t *testing.T) (*client.Client, *service.Service) {
	t.Helper()
	svc := service.New(service.WithWorkerCount(4))
	srv := httptest.NewServer(api.NewServer(svc, 100).Handler())
	t.Cleanup(srv.Close)
	return client.New(srv.URL, client.WithTimeout(5*time.Second)), svc
}

func TestClient_Engine(t *testing.T) {
	Convey("Given a client for a running server", t, func() {
		c, _ := newServer(t)
		ctx := context.Background()

		Convey("Then the server is healthy", func() {
			So(c.Health(ctx), ShouldBeNil)
		})

		Convey("When points are awarded and redeemed", func() {
			acct, err := c.AwardPoints(ctx, "u1", 260)
			So(err, ShouldBeNil)
			So(acct.Level, ShouldEqual, 3)

			acct, err = c.RedeemPoints(ctx, "u1", 200)
			So(err, ShouldBeNil)

			Convey("Then the balance reflects both", func() {
				So(acct.Points, ShouldEqual, 60)
				got, err := c.Balance(ctx, "u1")
				So(err, ShouldBeNil)
				So(got.Points, ShouldEqual, 60)
				So(got.Level, ShouldEqual, 1)
			})

			Convey("And an oversized redemption maps to ErrInsufficientPoints", func() {
				_, err := c.RedeemPoints(ctx, "u1", 1000)
				So(errors.Is(err, model.ErrInsufficientPoints), ShouldBeTrue)

				var apiErr *client.APIError
				So(errors.As(err, &apiErr), ShouldBeTrue)
				So(apiErr.Status, ShouldEqual, 400)
			})
		})

		Convey("When badges are granted and progressed", func() {
			tr, err := c.AwardBadge(ctx, "u1", "helper", client.BadgeAward{Level: "silver"})
			So(err, ShouldBeNil)
			So(tr.Created, ShouldBeTrue)

			tr, err = c.BadgeProgress(ctx, "u1", "helper", 1)
			So(err, ShouldBeNil)

			Convey("Then the badge reaches gold", func() {
				So(tr.Badge.Level, ShouldEqual, model.Gold)
				b, err := c.Badge(ctx, "u1", "helper")
				So(err, ShouldBeNil)
				So(b.Level, ShouldEqual, model.Gold)
			})
		})

		Convey("When a missing badge is read", func() {
			_, err := c.Badge(ctx, "u1", "time_based")

			Convey("Then it maps to ErrNotFound", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When goal activity is recorded on consecutive days", func() {
			day := time.Date(2024, 7, 1, 7, 0, 0, 0, time.UTC)
			_, err := c.Activity(ctx, "u1", "swim", day)
			So(err, ShouldBeNil)
			res, err := c.Activity(ctx, "u1", "swim", day.Add(24*time.Hour))
			So(err, ShouldBeNil)

			Convey("Then the streak grows", func() {
				So(res.Streak.CurrentStreak, ShouldEqual, 2)
				rec, err := c.Streak(ctx, "u1", "swim")
				So(err, ShouldBeNil)
				So(rec.BestStreak, ShouldEqual, 2)
			})

			Convey("And the snapshot includes it", func() {
				snap, err := c.Snapshot(ctx, "u1")
				So(err, ShouldBeNil)
				So(snap.Streaks, ShouldHaveLength, 1)
			})
		})

		Convey("When expired badges are swept", func() {
			_, err := c.AwardBadge(ctx, "u1", "event_badge", client.BadgeAward{ExpiresAt: "2020-01-01T00:00:00Z"})
			So(err, ShouldBeNil)
			n, err := c.Sweep(ctx, time.Time{})

			Convey("Then they are removed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When the leaderboard is read", func() {
			_, err := c.AwardPoints(ctx, "a", 10)
			So(err, ShouldBeNil)
			_, err = c.AwardPoints(ctx, "b", 20)
			So(err, ShouldBeNil)
			entries, err := c.Leaderboard(ctx, 5)

			Convey("Then it is ranked", func() {
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].UserID, ShouldEqual, "b")
			})
		})
	})
}

func TestClient_Simulate(t *testing.T) {
	Convey("Given a started server", t, func() {
		c, svc := newServer(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When a simulation with duplicates runs", func() {
			rep, err := c.Simulate(ctx, client.Simulation{
				Users:     5,
				Events:    200,
				Workers:   8,
				MaxAmount: 10,
				DupRate:   0.2,
			}, nil)
			So(err, ShouldBeNil)

			Convey("Then every event is accounted for", func() {
				So(rep.Submitted, ShouldEqual, 200)
				So(rep.Accepted+rep.Duplicates+rep.Failed, ShouldEqual, 200)
				So(rep.Accepted, ShouldBeGreaterThan, 0)
			})

			Convey("And the balances converge to the expected totals", func() {
				mismatched, err := c.Verify(ctx, rep.Expected, 20*time.Millisecond)
				So(err, ShouldBeNil)
				So(mismatched, ShouldBeEmpty)
			})
		})

		Convey("When the simulation is invalid", func() {
			_, err := c.Simulate(ctx, client.Simulation{Users: 0, Events: 1, Workers: 1, MaxAmount: 1}, nil)

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

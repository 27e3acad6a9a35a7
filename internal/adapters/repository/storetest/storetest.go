// Package storetest holds the behavioural suite every repository.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/okian/kudos/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey" //nolint:revive // goconvey DSL
)

// Factory returns a fresh, empty store.
type Factory func() repository.Store

var errAbort = errors.New("abort")

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := newStore()
		Reset(func() { _ = s.Close() })

		Convey("When reading a missing key", func() {
			_, err := s.Get(ctx, repository.Badges, "u1/helper")

			Convey("Then it reports not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When putting and reading a record", func() {
			So(s.Put(ctx, repository.Badges, "u1/helper", []byte(`{"a":1}`)), ShouldBeNil)
			v, err := s.Get(ctx, repository.Badges, "u1/helper")

			Convey("Then the value round-trips", func() {
				So(err, ShouldBeNil)
				So(string(v), ShouldEqual, `{"a":1}`)
			})

			Convey("And collections do not share keys", func() {
				_, err := s.Get(ctx, repository.StreakRecords, "u1/helper")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When updating an absent record", func() {
			var seen []byte
			out, err := s.AtomicUpdate(ctx, repository.PointsAccounts, "u1", func(cur []byte) ([]byte, error) {
				seen = cur
				return []byte("1"), nil
			})

			Convey("Then the function sees nil and the result is stored", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeNil)
				So(string(out), ShouldEqual, "1")
				v, _ := s.Get(ctx, repository.PointsAccounts, "u1")
				So(string(v), ShouldEqual, "1")
			})
		})

		Convey("When the update function returns nil", func() {
			So(s.Put(ctx, repository.PointsAccounts, "u1", []byte("7")), ShouldBeNil)
			out, err := s.AtomicUpdate(ctx, repository.PointsAccounts, "u1", func(cur []byte) ([]byte, error) {
				return nil, nil
			})

			Convey("Then the current value is kept and returned", func() {
				So(err, ShouldBeNil)
				So(string(out), ShouldEqual, "7")
			})
		})

		Convey("When the update function fails", func() {
			So(s.Put(ctx, repository.PointsAccounts, "u1", []byte("7")), ShouldBeNil)
			_, err := s.AtomicUpdate(ctx, repository.PointsAccounts, "u1", func(cur []byte) ([]byte, error) {
				return nil, errAbort
			})

			Convey("Then the error is returned unmodified and nothing changes", func() {
				So(err, ShouldEqual, errAbort)
				v, _ := s.Get(ctx, repository.PointsAccounts, "u1")
				So(string(v), ShouldEqual, "7")
			})
		})

		Convey("When updating several records at once", func() {
			refs := []repository.Ref{
				{Collection: repository.Badges, Key: "u1/helper"},
				{Collection: repository.PointsAccounts, Key: "u1"},
			}
			out, err := s.AtomicUpdateMany(ctx, refs, func(cur [][]byte) ([][]byte, error) {
				return [][]byte{[]byte("b"), []byte("p")}, nil
			})

			Convey("Then every record is written", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 2)
				b, _ := s.Get(ctx, repository.Badges, "u1/helper")
				p, _ := s.Get(ctx, repository.PointsAccounts, "u1")
				So(string(b), ShouldEqual, "b")
				So(string(p), ShouldEqual, "p")
			})

			Convey("And a failing multi-update writes nothing", func() {
				_, err := s.AtomicUpdateMany(ctx, refs, func(cur [][]byte) ([][]byte, error) {
					return nil, errAbort
				})
				So(err, ShouldEqual, errAbort)
				b, _ := s.Get(ctx, repository.Badges, "u1/helper")
				So(string(b), ShouldEqual, "b")
			})
		})

		Convey("When many goroutines increment the same key", func() {
			const n = 50
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.AtomicUpdate(ctx, repository.PointsAccounts, "hot", func(cur []byte) ([]byte, error) {
						v := 0
						if cur != nil {
							v, _ = strconv.Atoi(string(cur))
						}
						return []byte(strconv.Itoa(v + 1)), nil
					})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then no update is lost", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				v, err := s.Get(ctx, repository.PointsAccounts, "hot")
				So(err, ShouldBeNil)
				So(string(v), ShouldEqual, strconv.Itoa(n))
			})
		})

		Convey("When listing by prefix", func() {
			for _, k := range []string{"u1/b", "u1/a", "u2/a", "u10/a"} {
				So(s.Put(ctx, repository.StreakRecords, k, []byte(k)), ShouldBeNil)
			}
			recs, err := s.List(ctx, repository.StreakRecords, "u1/")

			Convey("Then only matching keys are returned in key order", func() {
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 2)
				So(recs[0].Key, ShouldEqual, "u1/a")
				So(recs[1].Key, ShouldEqual, "u1/b")
			})

			Convey("And an empty prefix lists the whole collection", func() {
				all, err := s.List(ctx, repository.StreakRecords, "")
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 4)
			})
		})

		Convey("When deleting by predicate", func() {
			for _, k := range []string{"u1/a", "u1/b", "u2/a"} {
				So(s.Put(ctx, repository.Badges, k, []byte(k)), ShouldBeNil)
			}
			pred := func(key string, _ []byte) bool { return key[:2] == "u1" }
			n, err := s.DeleteWhere(ctx, repository.Badges, pred)

			Convey("Then matching records are removed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				left, _ := s.List(ctx, repository.Badges, "")
				So(len(left), ShouldEqual, 1)
			})

			Convey("And repeating the delete removes nothing", func() {
				n, err := s.DeleteWhere(ctx, repository.Badges, pred)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})
}

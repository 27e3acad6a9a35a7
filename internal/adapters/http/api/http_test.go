package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/kudos/internal/adapters/http/api"
	"github.com/okian/kudos/internal/adapters/repository"
	service "github.com/okian/kudos/internal/app"
	"github.com/okian/kudos/internal/domain/badge"
	"github.com/okian/kudos/internal/domain/model"
	"github.com/okian/kudos/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// downStore fails every read-modify-write as unavailable.
type downStore struct {
	repository.Store
}

func (downStore) AtomicUpdate(context.Context, repository.Collection, string, repository.UpdateFunc) ([]byte, error) {
	return nil, repository.Unavailable("update", errors.New("connection refused"))
}

func newHandler(opts ...service.Option) (http.Handler, *service.Service) {
	svc := service.New(append([]service.Option{service.WithClock(func() time.Time { return now })}, opts...)...)
	return api.NewServer(svc, 50).Handler(), svc
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServer_Health(t *testing.T) {
	Convey("Given an API server", t, func() {
		h, _ := newHandler()

		Convey("When /healthz is requested", func() {
			w := do(h, http.MethodGet, "/healthz", "")

			Convey("Then it serves the metrics exposition", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "kudos_progression")
			})
		})

		Convey("When /stats is requested", func() {
			w := do(h, http.MethodGet, "/stats", "")

			Convey("Then it returns the service stats", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var stats map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
				So(stats["started"], ShouldEqual, false)
			})
		})

		Convey("When an unknown route is requested", func() {
			w := do(h, http.MethodGet, "/nope", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a route is called with the wrong method", func() {
			w := do(h, http.MethodDelete, "/users/u1/points", "")

			Convey("Then it is not allowed", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestServer_Points(t *testing.T) {
	Convey("Given an API server", t, func() {
		h, _ := newHandler()

		Convey("When 120 points are awarded", func() {
			w := do(h, http.MethodPost, "/users/u1/points", `{"amount":120}`)

			Convey("Then the account is returned at level 2", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var acct model.PointsAccount
				So(json.Unmarshal(w.Body.Bytes(), &acct), ShouldBeNil)
				So(acct.Points, ShouldEqual, 120)
				So(acct.Level, ShouldEqual, 2)
			})

			Convey("And the balance reads it back", func() {
				w := do(h, http.MethodGet, "/users/u1/points", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"points":120`)
			})

			Convey("And redeeming more than the balance is a bad request", func() {
				w := do(h, http.MethodPost, "/users/u1/points/redeem", `{"amount":500}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "insufficient_points")
			})

			Convey("And redeeming part of it succeeds", func() {
				w := do(h, http.MethodPost, "/users/u1/points/redeem", `{"amount":20}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"points":100`)
			})
		})

		Convey("When a negative amount is posted", func() {
			w := do(h, http.MethodPost, "/users/u1/points", `{"amount":-5}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
			})
		})

		Convey("When the body has unknown fields", func() {
			w := do(h, http.MethodPost, "/users/u1/points", `{"points":5}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})

	Convey("Given an API server whose store is down", t, func() {
		h, _ := newHandler(service.WithStore(downStore{Store: repository.NewMemStore()}))

		Convey("When points are awarded", func() {
			w := do(h, http.MethodPost, "/users/u1/points", `{"amount":1}`)

			Convey("Then the service is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(errorCode(w), ShouldEqual, "store_unavailable")
			})
		})
	})
}

func TestServer_Badges(t *testing.T) {
	Convey("Given an API server", t, func() {
		h, _ := newHandler(service.WithCatalog(badge.NewCatalog(badge.WithTypeGoal(model.Helper, 3))))

		Convey("When an unknown badge is read", func() {
			w := do(h, http.MethodGet, "/users/u1/badges/helper", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(errorCode(w), ShouldEqual, "not_found")
			})
		})

		Convey("When a badge is awarded", func() {
			w := do(h, http.MethodPost, "/users/u1/badges/event_badge", "")

			Convey("Then it is created at bronze", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var tr badge.Transition
				So(json.Unmarshal(w.Body.Bytes(), &tr), ShouldBeNil)
				So(tr.Created, ShouldBeTrue)
				So(tr.Badge.Level, ShouldEqual, model.Bronze)
			})

			Convey("And awarding it again upgrades it", func() {
				w := do(h, http.MethodPost, "/users/u1/badges/event_badge", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var tr badge.Transition
				So(json.Unmarshal(w.Body.Bytes(), &tr), ShouldBeNil)
				So(tr.Badge.Level, ShouldEqual, model.Silver)
				So(tr.PointsCredited, ShouldEqual, 20)
			})
		})

		Convey("When a badge is awarded with an unknown level", func() {
			w := do(h, http.MethodPost, "/users/u1/badges/event_badge", `{"level":"platinum"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When helper progress is posted", func() {
			w := do(h, http.MethodPost, "/users/u1/badges/helper/progress", `{"increment":4}`)

			Convey("Then the badge levels up with the overflow carried", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var tr badge.Transition
				So(json.Unmarshal(w.Body.Bytes(), &tr), ShouldBeNil)
				So(tr.Badge.Level, ShouldEqual, model.Silver)
				So(tr.Badge.Progress, ShouldEqual, 1)
				So(tr.PointsCredited, ShouldEqual, 30)
			})
		})

		Convey("When zero progress is posted", func() {
			w := do(h, http.MethodPost, "/users/u1/badges/helper/progress", `{"increment":0}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestServer_Goals(t *testing.T) {
	Convey("Given an API server", t, func() {
		h, _ := newHandler()

		Convey("When an activity is posted", func() {
			w := do(h, http.MethodPost, "/users/u1/goals/read/activity", `{"at":"2024-06-01T08:00:00Z"}`)

			Convey("Then the streak starts", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res service.TaskResult
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.Streak.CurrentStreak, ShouldEqual, 1)
			})

			Convey("And the streak can be read back", func() {
				w := do(h, http.MethodGet, "/users/u1/goals/read/streak", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"current_streak":1`)
			})

			Convey("And an earlier activity is a bad request", func() {
				w := do(h, http.MethodPost, "/users/u1/goals/read/activity", `{"at":"2024-05-31T08:00:00Z"}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the timestamp is malformed", func() {
			w := do(h, http.MethodPost, "/users/u1/goals/read/activity", `{"at":"yesterday"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unknown streak is read", func() {
			w := do(h, http.MethodGet, "/users/u1/goals/none/streak", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestServer_ReadModels(t *testing.T) {
	Convey("Given an API server with two users", t, func() {
		h, svc := newHandler()
		ctx := context.Background()
		_, err := svc.AwardPoints(ctx, "alice", 300)
		So(err, ShouldBeNil)
		_, err = svc.AwardPoints(ctx, "bob", 50)
		So(err, ShouldBeNil)

		Convey("When a snapshot is requested", func() {
			w := do(h, http.MethodGet, "/users/alice/snapshot", "")

			Convey("Then it aggregates the user's progression", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var snap model.Snapshot
				So(json.Unmarshal(w.Body.Bytes(), &snap), ShouldBeNil)
				So(snap.Points, ShouldEqual, 300)
				So(snap.Level, ShouldEqual, 3)
				So(snap.NextLevelAt, ShouldEqual, 500)
			})
		})

		Convey("When the leaderboard is requested", func() {
			w := do(h, http.MethodGet, "/leaderboard?limit=10", "")

			Convey("Then users are ranked by points", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var entries []types.Entry
				So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].UserID, ShouldEqual, "alice")
				So(entries[1].Rank, ShouldEqual, 2)
			})
		})

		Convey("When the leaderboard limit is missing", func() {
			w := do(h, http.MethodGet, "/leaderboard", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the leaderboard limit exceeds the maximum", func() {
			w := do(h, http.MethodGet, "/leaderboard?limit=51", "")

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "limit_exceeded")
			})
		})

		Convey("When a sweep is requested", func() {
			_, err := svc.AwardBadge(ctx, "alice", model.TimeBased, badge.WithExpiresAt(now.Add(-time.Hour)))
			So(err, ShouldBeNil)
			w := do(h, http.MethodPost, "/admin/sweep", "")

			Convey("Then expired badges are removed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"removed":1`)
			})
		})
	})
}

func TestServer_Events(t *testing.T) {
	Convey("Given an API server", t, func() {
		h, svc := newHandler(service.WithWorkerCount(1))
		ctx := context.Background()

		Convey("When an event is posted before the service starts", func() {
			w := do(h, http.MethodPost, "/events", `{"event_id":"e1","kind":"points_awarded","user_id":"u1","amount":5}`)

			Convey("Then the service is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(errorCode(w), ShouldEqual, "not_started")
			})
		})

		Convey("When the service is started", func() {
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then a valid event is accepted and applied", func() {
				w := do(h, http.MethodPost, "/events", `{"event_id":"e1","kind":"points_awarded","user_id":"u1","amount":5}`)
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"accepted"`)

				So(svc.Stop(ctx), ShouldBeNil)
				acct, err := svc.Balance(ctx, "u1")
				So(err, ShouldBeNil)
				So(acct.Points, ShouldEqual, 5)
			})

			Convey("And a redelivered event is a duplicate", func() {
				body := `{"event_id":"e2","kind":"points_awarded","user_id":"u1","amount":5}`
				So(do(h, http.MethodPost, "/events", body).Code, ShouldEqual, http.StatusAccepted)
				w := do(h, http.MethodPost, "/events", body)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
			})

			Convey("And an event of an unknown kind is a bad request", func() {
				w := do(h, http.MethodPost, "/events", `{"event_id":"e3","kind":"levelled","user_id":"u1"}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And a malformed body is a bad request", func() {
				w := do(h, http.MethodPost, "/events", `{"event_id":`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Reset(func() { _ = svc.Stop(ctx) })
		})
	})
}

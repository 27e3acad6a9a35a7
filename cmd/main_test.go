package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/kudos/internal/app"
	"github.com/okian/kudos/internal/config"
	"github.com/okian/kudos/pkg/logger"
)

func TestOpenStore(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When the memory backend is selected", func() {
			store, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then a store is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store, convey.ShouldNotBeNil)
				convey.So(store.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the sqlite backend is selected", func() {
			cfg.Store = config.StoreSQLite
			cfg.SQLitePath = filepath.Join(t.TempDir(), "kudos.db")
			store, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then the database file is opened", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the backend is unknown", func() {
			cfg.Store = "tape"
			_, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then it is rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "tape")
			})
		})
	})
}

func TestNewRouter(t *testing.T) {
	convey.Convey("Given the assembled router", t, func() {
		svc := app.New()
		srv := httptest.NewServer(newRouter(svc, config.New()))
		defer srv.Close()

		for _, path := range []string{"/healthz", "/metrics", "/stats", "/api-docs", "/openapi.yaml", "/users/u1/points"} {
			convey.Convey("Then GET "+path+" succeeds", func() {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = resp.Body.Close() }()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		}
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configuration on a free port", t, func() {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		addr := l.Addr().String()
		convey.So(l.Close(), convey.ShouldBeNil)

		cfg := config.New()
		cfg.Addr = addr
		cfg.SweepIntervalSec = 1

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, logger.Nop()) }()
		convey.Reset(cancel)

		convey.Convey("When the server is up", func() {
			var resp *http.Response
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				resp, err = http.Get("http://" + addr + "/healthz")
				if err == nil {
					break
				}
				time.Sleep(20 * time.Millisecond)
			}
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			convey.Convey("Then cancelling the context shuts it down cleanly", func() {
				cancel()
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(10 * time.Second):
					t.Fatal("run did not return")
				}
			})
		})
	})
}

func TestRunInvalidStore(t *testing.T) {
	convey.Convey("Given an unknown store backend", t, func() {
		cfg := config.New()
		cfg.Store = "tape"

		convey.Convey("Then run fails before serving", func() {
			convey.So(run(context.Background(), cfg, logger.Nop()), convey.ShouldNotBeNil)
		})
	})
}

func TestUpdateMetrics(t *testing.T) {
	convey.Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := app.New()
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		convey.Convey("Then the metric updaters run without panicking", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(ctx, svc) }, convey.ShouldNotPanic)
		})
	})
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it uses the kudos namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "kudos")
				So(manager.subsystem, ShouldEqual, "progression")
				So(manager.enabled, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.metricPrefix, ShouldEqual, "test_")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.enabled, ShouldBeFalse)
				So(manager.refreshInterval, ShouldEqual, 5*time.Second)
				So(manager.customLabels["env"], ShouldEqual, "test")
			})

			Convey("Then metric names carry the prefix", func() {
				manager.pointsAwarded.Add(1)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_test_points_awarded_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty values are passed to options", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "kudos")
				So(manager.subsystem, ShouldEqual, "progression")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		SetEnabled(true)

		Convey("When points are awarded and redeemed", func() {
			awarded := testutil.ToFloat64(globalManager.pointsAwarded)
			redeemed := testutil.ToFloat64(globalManager.pointsRedeemed)
			RecordPointsAwarded(50)
			RecordPointsAwarded(0)
			RecordPointsRedeemed(20)

			Convey("Then the counters move by the amounts", func() {
				So(testutil.ToFloat64(globalManager.pointsAwarded)-awarded, ShouldEqual, 50)
				So(testutil.ToFloat64(globalManager.pointsRedeemed)-redeemed, ShouldEqual, 20)
			})
		})

		Convey("When badge events are recorded", func() {
			c := globalManager.badgeLevelUps.WithLabelValues("helper")
			before := testutil.ToFloat64(c)
			RecordBadgeLevelUps("helper", 2)
			RecordBadgeAwarded("helper")
			RecordBadgesExpired(3)

			Convey("Then the labelled counter is incremented", func() {
				So(testutil.ToFloat64(c)-before, ShouldEqual, 2)
			})
		})

		Convey("When store operations are recorded", func() {
			e := globalManager.storeErrors.WithLabelValues("memory", "get")
			before := testutil.ToFloat64(e)
			RecordStoreOperation("memory", "get", 0.2)
			RecordStoreError("memory", "get")

			Convey("Then the error counter is incremented", func() {
				So(testutil.ToFloat64(e)-before, ShouldEqual, 1)
			})
		})

		Convey("When queue and worker gauges are updated", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(100)
			UpdateQueueUtilization(0.07)
			UpdateWorkerCount(4)

			Convey("Then the gauges hold the values", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
			})
		})

		Convey("When the remaining recorders are called", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordLevelUps(1)
					RecordStreakActivity()
					RecordStreakReset()
					RecordEngineError("award_points", "invalid_argument")
					UpdateTotalAccounts(3)
					RecordEventProcessed("points_awarded")
					RecordEventDuplicate()
					RecordEventFailed("badge_progress")
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError("full")
					RecordWorkerProcessingLatency(1.5)
					RecordHTTPRequest("/healthz", "GET", "200")
					RecordHTTPRequestDuration("/healthz", "GET", "200", 0.4)
					RecordHTTPError("/events", "POST", "validation_error")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording is disabled", func() {
			before := testutil.ToFloat64(globalManager.streakActivity)
			SetEnabled(false)
			RecordStreakActivity()
			SetEnabled(true)

			Convey("Then nothing is recorded", func() {
				So(testutil.ToFloat64(globalManager.streakActivity), ShouldEqual, before)
			})
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordEventDuplicate()
		families, err := GetRegistry().Gather()

		Convey("Then it exposes kudos metrics", func() {
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			for _, f := range families {
				So(f.GetName(), ShouldStartWith, "kudos_progression_")
			}
		})
	})
}

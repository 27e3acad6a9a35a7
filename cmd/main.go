package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/kudos/internal/adapters/http/api"
	"github.com/okian/kudos/internal/adapters/http/swagger"
	"github.com/okian/kudos/internal/adapters/repository"
	"github.com/okian/kudos/internal/adapters/repository/redisstore"
	"github.com/okian/kudos/internal/adapters/repository/sqlitestore"
	app "github.com/okian/kudos/internal/app"
	"github.com/okian/kudos/internal/config"
	"github.com/okian/kudos/pkg/logger"
	"github.com/okian/kudos/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, logger.Get()); err != nil {
		logger.Get().Error(ctx, "server failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	opts, err := app.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	svc := app.New(append(opts, app.WithStore(store), app.WithLogger(log))...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)
	go runSweeper(ctx, svc, cfg.SweepInterval(), log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			_ = svc.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	// Drain queued events before the store closes.
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service stop failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore builds the record store selected by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return repository.NewMemStore(repository.WithLogger(log)), nil
	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath, sqlitestore.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.SQLitePath, err)
		}
		return s, nil
	case config.StoreRedis:
		s, err := redisstore.Open(ctx, cfg.RedisAddr,
			redisstore.WithNamespace(cfg.RedisNamespace),
			redisstore.WithLogger(log),
		)
		if err != nil {
			return nil, fmt.Errorf("open redis store %s: %w", cfg.RedisAddr, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// newRouter mounts the API and its documentation.
func newRouter(svc *app.Service, cfg *config.Config) chi.Router {
	r := api.NewServer(svc, cfg.MaxLeaderboardLimit).Handler()
	swagger.Register(r)
	return r
}

// runSweeper removes expired badges every interval. A zero interval disables it.
func runSweeper(ctx context.Context, svc *app.Service, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepExpired(ctx, time.Time{})
			if err != nil {
				log.Warn(ctx, "badge sweep failed", logger.Error(err))
				continue
			}
			if n > 0 {
				log.Info(ctx, "expired badges removed", logger.Int("removed", n))
			}
		}
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if total, ok := stats["totalAccounts"].(int); ok {
		metrics.UpdateTotalAccounts(total)
	}
}

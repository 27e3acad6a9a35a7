// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and KUDOS_ env vars on top of the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the record store backend: memory, sqlite or redis.
	Store string `koanf:"store"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// RedisAddr and RedisNamespace configure the redis backend.
	RedisAddr      string `koanf:"redis_addr"`
	RedisNamespace string `koanf:"redis_namespace"`

	// EventQueueSize bounds the in-memory event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of event workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// LevelThresholds are the ascending point thresholds; the first must be 0.
	LevelThresholds []int64 `koanf:"level_thresholds"`

	// BadgeRewards maps badge types to the points credited per level-up.
	BadgeRewards map[string]int64 `koanf:"badge_rewards"`

	// BadgeGoals maps badge types to the progress needed per level.
	BadgeGoals map[string]int `koanf:"badge_goals"`

	// BadgeTTLHours gives badge types a lifetime; absent types never expire.
	BadgeTTLHours map[string]int `koanf:"badge_ttl_hours"`

	// StreakWindowHours is the longest gap that keeps a streak alive.
	StreakWindowHours int `koanf:"streak_window_hours"`

	// StreakMilestones are the streak lengths that feed consistency_master.
	StreakMilestones []int `koanf:"streak_milestones"`

	// SweepIntervalSec schedules the badge expiry sweep; 0 disables it.
	SweepIntervalSec int `koanf:"sweep_interval_sec"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `koanf:"shutdown_timeout_sec"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Store:               StoreMemory,
		SQLitePath:          "kudos.db",
		RedisAddr:           "localhost:6379",
		RedisNamespace:      "kudos",
		EventQueueSize:      10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          100_000,
		MaxLeaderboardLimit: 100,
		LevelThresholds:     []int64{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000},
		BadgeRewards: map[string]int64{
			"goal_completed":     50,
			"helper":             30,
			"milestone_achiever": 100,
			"consistency_master": 75,
			"time_based":         40,
			"event_badge":        20,
		},
		BadgeGoals:         map[string]int{},
		BadgeTTLHours:      map[string]int{},
		StreakWindowHours:  24,
		StreakMilestones:   []int{7, 30, 100},
		SweepIntervalSec:   60,
		ShutdownTimeoutSec: 10,
	}
}

// StreakWindow returns the streak window as a duration.
func (c *Config) StreakWindow() time.Duration {
	return time.Duration(c.StreakWindowHours) * time.Hour
}

// SweepInterval returns the sweep period; zero means disabled.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// Validate checks the values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path must not be empty")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr must not be empty")
		}
	default:
		return invalid(fmt.Sprintf("unknown store %q", c.Store))
	}
	if c.EventQueueSize <= 0 {
		return invalid("queue_size must be positive")
	}
	if c.WorkerCount <= 0 {
		return invalid("worker_count must be positive")
	}
	if c.DedupeSize <= 0 {
		return invalid("dedupe_size must be positive")
	}
	if c.MaxLeaderboardLimit <= 0 {
		return invalid("max_leaderboard_limit must be positive")
	}
	if c.StreakWindowHours <= 0 {
		return invalid("streak_window_hours must be positive")
	}
	if c.SweepIntervalSec < 0 {
		return invalid("sweep_interval_sec must not be negative")
	}
	for _, m := range c.StreakMilestones {
		if m <= 0 {
			return invalid("streak_milestones must be positive")
		}
	}
	for t, r := range c.BadgeRewards {
		if r < 0 {
			return invalid(fmt.Sprintf("badge_rewards.%s must not be negative", t))
		}
	}
	for t, g := range c.BadgeGoals {
		if g <= 0 {
			return invalid(fmt.Sprintf("badge_goals.%s must be positive", t))
		}
	}
	for t, h := range c.BadgeTTLHours {
		if h <= 0 {
			return invalid(fmt.Sprintf("badge_ttl_hours.%s must be positive", t))
		}
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

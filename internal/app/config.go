package service

import (
	"fmt"
	"time"

	"github.com/okian/kudos/internal/config"
	"github.com/okian/kudos/internal/domain/badge"
	"github.com/okian/kudos/internal/domain/levels"
	"github.com/okian/kudos/internal/domain/model"
)

// OptionsFromConfig translates the engine and intake settings of cfg into
// service options. The store is not included; callers open it themselves.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	table, err := levels.New(cfg.LevelThresholds)
	if err != nil {
		return nil, fmt.Errorf("level thresholds: %w", err)
	}

	var catalogOpts []badge.CatalogOption
	for t, pts := range cfg.BadgeRewards {
		catalogOpts = append(catalogOpts, badge.WithTypeReward(model.BadgeType(t), pts))
	}
	for t, goal := range cfg.BadgeGoals {
		catalogOpts = append(catalogOpts, badge.WithTypeGoal(model.BadgeType(t), goal))
	}
	for t, hours := range cfg.BadgeTTLHours {
		catalogOpts = append(catalogOpts, badge.WithTypeTTL(model.BadgeType(t), time.Duration(hours)*time.Hour))
	}

	return []Option{
		WithLevels(table),
		WithCatalog(badge.NewCatalog(catalogOpts...)),
		WithStreakWindow(cfg.StreakWindow()),
		WithStreakMilestones(cfg.StreakMilestones),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.EventQueueSize),
		WithDedupeSize(cfg.DedupeSize),
	}, nil
}

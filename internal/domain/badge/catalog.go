package badge

import (
	"time"

	"github.com/okian/kudos/internal/domain/model"
)

// defaultGoal is the progress needed per level when a type has no goal.
const defaultGoal = 1

// defaultRewards are the points credited per level-up. Unknown types earn 0.
var defaultRewards = map[model.BadgeType]int64{ //nolint:gochecknoglobals // reward table
	model.GoalCompleted:     50,
	model.Helper:            30,
	model.MilestoneAchiever: 100,
	model.ConsistencyMaster: 75,
	model.TimeBased:         40,
	model.EventBadge:        20,
}

// Catalog holds per-type badge rules: rewards, goals and lifetimes.
type Catalog struct {
	rewards map[model.BadgeType]int64
	goals   map[model.BadgeType]int
	ttls    map[model.BadgeType]time.Duration
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithTypeReward sets the points credited when a badge of type t levels up.
func WithTypeReward(t model.BadgeType, points int64) CatalogOption {
	return func(c *Catalog) {
		if points >= 0 {
			c.rewards[t] = points
		}
	}
}

// WithTypeGoal sets the progress a badge of type t needs per level.
func WithTypeGoal(t model.BadgeType, goal int) CatalogOption {
	return func(c *Catalog) {
		if goal > 0 {
			c.goals[t] = goal
		}
	}
}

// WithTypeTTL gives new badges of type t an expiry ttl after creation.
func WithTypeTTL(t model.BadgeType, ttl time.Duration) CatalogOption {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttls[t] = ttl
		}
	}
}

// NewCatalog returns the default catalog with opts applied.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		rewards: make(map[model.BadgeType]int64, len(defaultRewards)),
		goals:   make(map[model.BadgeType]int),
		ttls:    make(map[model.BadgeType]time.Duration),
	}
	for t, r := range defaultRewards {
		c.rewards[t] = r
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reward returns the level-up reward for t.
func (c *Catalog) Reward(t model.BadgeType) int64 {
	return c.rewards[t]
}

// Goal returns the per-level goal for t.
func (c *Catalog) Goal(t model.BadgeType) int {
	if g, ok := c.goals[t]; ok {
		return g
	}
	return defaultGoal
}

// TTL returns the lifetime of new badges of type t, if any.
func (c *Catalog) TTL(t model.BadgeType) (time.Duration, bool) {
	ttl, ok := c.ttls[t]
	return ttl, ok
}

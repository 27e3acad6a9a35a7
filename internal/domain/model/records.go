// Package model contains the progression records passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// keySeparator joins the parts of composite record keys.
const keySeparator = "/"

// PointsAccount is a user's point balance. Level is derived from Points and
// is never set directly.
type PointsAccount struct {
	UserID         string    `json:"user_id"`
	Points         int64     `json:"points"`
	Level          int       `json:"level"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// BadgeLevel is a badge tier.
type BadgeLevel string

// Badge tiers in ascending order. Gold is terminal.
const (
	Bronze BadgeLevel = "bronze"
	Silver BadgeLevel = "silver"
	Gold   BadgeLevel = "gold"
)

// Next returns the tier above l. Gold maps to itself.
func (l BadgeLevel) Next() (BadgeLevel, error) {
	switch l {
	case Bronze:
		return Silver, nil
	case Silver:
		return Gold, nil
	case Gold:
		return Gold, nil
	default:
		return "", fmt.Errorf("%w: unknown badge level %q", ErrInvalidArgument, string(l))
	}
}

// Valid reports whether l is a known tier.
func (l BadgeLevel) Valid() bool {
	return l == Bronze || l == Silver || l == Gold
}

// BadgeType identifies a badge family.
type BadgeType string

// Known badge types.
const (
	GoalCompleted     BadgeType = "goal_completed"
	Helper            BadgeType = "helper"
	MilestoneAchiever BadgeType = "milestone_achiever"
	ConsistencyMaster BadgeType = "consistency_master"
	TimeBased         BadgeType = "time_based"
	EventBadge        BadgeType = "event_badge"
)

// Badge tracks a user's progress on one badge type. Progress stays below
// Goal at every level, gold included.
type Badge struct {
	UserID    string     `json:"user_id"`
	Type      BadgeType  `json:"badge_type"`
	Level     BadgeLevel `json:"level"`
	Progress  int        `json:"progress"`
	Goal      int        `json:"goal"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	AwardedAt time.Time  `json:"awarded_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether the badge has an expiry strictly before now.
func (b Badge) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}

// Active reports whether the badge should be displayed at now.
func (b Badge) Active(now time.Time) bool {
	return !b.Expired(now)
}

// StreakRecord holds consecutive-activity counters for a (user, goal) pair.
type StreakRecord struct {
	UserID         string     `json:"user_id"`
	GoalID         string     `json:"goal_id"`
	CurrentStreak  int        `json:"current_streak"`
	BestStreak     int        `json:"best_streak"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

// Snapshot is the read-only aggregate of a user's progression.
type Snapshot struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
	Level  int    `json:"level"`
	// NextLevelAt is the threshold of the next level; zero at the top level.
	NextLevelAt int64          `json:"next_level_at,omitempty"`
	Badges      []BadgeView    `json:"badges"`
	Streaks     []StreakRecord `json:"streaks"`
}

// BadgeView decorates a badge with its display state.
type BadgeView struct {
	Badge
	Active bool `json:"active"`
}

// ValidateID checks an identifier used as (part of) a record key.
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidArgument, kind)
	}
	if strings.Contains(id, keySeparator) {
		return fmt.Errorf("%w: %s must not contain %q", ErrInvalidArgument, kind, keySeparator)
	}
	return nil
}

// UserPrefix returns the key prefix shared by all of a user's composite keys.
func UserPrefix(userID string) string {
	return userID + keySeparator
}

// BadgeKey returns the record key of a (user, badge type) pair.
func BadgeKey(userID string, t BadgeType) string {
	return UserPrefix(userID) + string(t)
}

// StreakKey returns the record key of a (user, goal) pair.
func StreakKey(userID, goalID string) string {
	return UserPrefix(userID) + goalID
}

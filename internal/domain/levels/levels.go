// Package levels holds the point thresholds that define user levels.
package levels

import (
	"fmt"
	"sort"

	"github.com/okian/kudos/internal/domain/model"
)

// DefaultThresholds are the level boundaries used when none are configured.
var DefaultThresholds = []int64{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000} //nolint:gochecknoglobals // read-only table

// Table is an immutable, strictly increasing list of point thresholds.
// Level i (1-based) starts at thresholds[i-1].
type Table struct {
	thresholds []int64
}

// New validates thresholds and returns a Table holding a private copy.
func New(thresholds []int64) (*Table, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("%w: empty threshold table", model.ErrInvalidArgument)
	}
	if thresholds[0] != 0 {
		return nil, fmt.Errorf("%w: first threshold must be 0, got %d", model.ErrInvalidArgument, thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, fmt.Errorf("%w: thresholds must be strictly increasing at index %d", model.ErrInvalidArgument, i)
		}
	}
	cp := make([]int64, len(thresholds))
	copy(cp, thresholds)
	return &Table{thresholds: cp}, nil
}

// Default returns a Table built from DefaultThresholds.
func Default() *Table {
	t, err := New(DefaultThresholds)
	if err != nil {
		panic(err) // DefaultThresholds is a valid constant table
	}
	return t
}

// Thresholds returns a copy of the table.
func (t *Table) Thresholds() []int64 {
	cp := make([]int64, len(t.thresholds))
	copy(cp, t.thresholds)
	return cp
}

// Len returns the number of levels, which is also the highest level.
func (t *Table) Len() int {
	return len(t.thresholds)
}

// LevelFor returns the 1-based index of the last threshold not exceeding
// points. Points beyond the last threshold stay at the top level.
func (t *Table) LevelFor(points int64) (int, error) {
	if points < 0 {
		return 0, fmt.Errorf("%w: negative points %d", model.ErrInvalidArgument, points)
	}
	// First index whose threshold exceeds points; thresholds[0] == 0 so i >= 1.
	i := sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i] > points })
	return i, nil
}

// NextThreshold returns the points needed to reach level+1, or false when
// level is already the top level.
func (t *Table) NextThreshold(level int) (int64, bool) {
	if level < 1 || level >= len(t.thresholds) {
		return 0, false
	}
	return t.thresholds[level], true
}

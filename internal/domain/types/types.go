// Package types contains view types shared by the service and its adapters.
package types

// Entry is one leaderboard row.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
	Level  int    `json:"level"`
}

// Receipt acknowledges an event submitted for asynchronous processing.
type Receipt struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

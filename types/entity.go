package types

import "time"

// Entity carries the timestamps shared by persisted OpenShelf records.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity stamps both timestamps with now, truncated to microseconds so
// the value survives a round trip through every store backend.
func NewEntity(now time.Time) Entity {
	now = now.UTC().Truncate(time.Microsecond)
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Package state persists bucket state across process restarts so a learned,
// possibly still-throttled capacity is not reset to a default that would
// immediately draw fresh 429s. Snapshotting is restart continuity for a
// single process, not distributed coordination.
package state

import (
	"context"
	"time"
)

// BucketState is the persisted form of one bucket. Endpoint overrides nest
// under their API entry with the same fields.
type BucketState struct {
	Capacity      int                    `json:"capacity"`
	Tokens        float64                `json:"tokens"`
	LastRefill    float64                `json:"lastRefill"` // epoch seconds
	SuccessStreak int                    `json:"successStreak"`
	Endpoints     map[string]BucketState `json:"endpoints,omitempty"`
}

// Snapshot maps API names to their persisted bucket state.
type Snapshot map[string]BucketState

// Store saves and loads snapshots. Implementations must treat a missing
// snapshot as a cold start, returning (nil, nil) from Load.
type Store interface {
	// Save persists the snapshot, replacing any previous one.
	Save(ctx context.Context, snap Snapshot) error

	// Load returns the last saved snapshot, or (nil, nil) when none exists
	// or the stored data is unusable.
	Load(ctx context.Context) (Snapshot, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// EpochSeconds converts a time to the epoch-seconds float used on disk.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromEpochSeconds converts epoch-seconds back to a time. Zero maps to the
// zero time so callers can detect an unset field.
func FromEpochSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(s*float64(time.Second)))
}

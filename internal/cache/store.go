package cache

import (
	"context"
	"time"
)

// Entry is one cached payload plus the bookkeeping the coordinator needs to
// reason about freshness and coverage.
type Entry struct {
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
	// RangeStart and RangeEnd bound the covered time range in canonical
	// seconds; zero for point-in-time records.
	RangeStart int64 `json:"range_start,omitempty"`
	RangeEnd   int64 `json:"range_end,omitempty"`
}

// Store is the pluggable persistence behind the coordinator. Stores only
// hold bytes; coalescing and rate limiting always stay in-process.
type Store interface {
	// Get returns the entry and whether a live (unexpired) entry exists.
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key with the given prefix and reports how
	// many were dropped.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Package cache stores acquisition results per vehicle key with an expiry.
//
// Expiry is checked on every read, so a stale entry is a miss even if no
// cleanup has run. Purge removes expired entries and is best-effort.
package cache

import (
	"context"
	"time"

	"github.com/dshills/manualrag/pkg/types"
)

// DefaultTTL is how long an acquisition result stays valid
const DefaultTTL = 30 * 24 * time.Hour

// Cache is a key-value store of acquisition results with TTL
type Cache interface {
	Get(ctx context.Context, key string) (*types.ManualRetrievalResult, bool, error)
	Set(ctx context.Context, key string, result types.ManualRetrievalResult, ttl time.Duration) error
	Purge(ctx context.Context) (removed int, err error)
	Close() error
}

// entry is the stored form of a result
type entry struct {
	Result    types.ManualRetrievalResult `json:"result"`
	ExpiresAt time.Time                   `json:"expires_at"`
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Add(ttl)
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dshills/manualrag/pkg/types"
)

var bucketManuals = []byte("manual_results")

// BoltCache persists entries in a bbolt file so they survive restarts
type BoltCache struct {
	db    *bbolt.DB
	clock func() time.Time
}

// NewBoltCache opens (or creates) the cache file at path
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketManuals)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketManuals, err)
	}

	return &BoltCache{db: db, clock: time.Now}, nil
}

func (c *BoltCache) Get(ctx context.Context, key string) (*types.ManualRetrievalResult, bool, error) {
	var e entry
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketManuals).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	if !found || e.expired(c.clock()) {
		return nil, false, nil
	}
	return &e.Result, true, nil
}

func (c *BoltCache) Set(ctx context.Context, key string, result types.ManualRetrievalResult, ttl time.Duration) error {
	data, err := json.Marshal(entry{Result: result, ExpiresAt: expiry(c.clock(), ttl)})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManuals).Put([]byte(key), data)
	})
}

// Purge deletes expired entries; unreadable entries are deleted too
func (c *BoltCache) Purge(ctx context.Context) (int, error) {
	now := c.clock()
	removed := 0
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketManuals)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e entry
			if err := json.Unmarshal(v, &e); err != nil || e.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}

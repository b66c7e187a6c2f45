package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/manualrag/pkg/types"
)

// DefaultMemorySize bounds the in-process cache
const DefaultMemorySize = 4096

// MemoryCache is an in-process LRU with per-entry expiry
type MemoryCache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, entry]
	clock func() time.Time
}

// NewMemoryCache creates a cache holding at most size entries
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: l, clock: time.Now}, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*types.ManualRetrievalResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(c.clock()) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	result := e.Result
	return &result, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, result types.ManualRetrievalResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, entry{Result: result, ExpiresAt: expiry(c.clock(), ttl)})
	return nil
}

func (c *MemoryCache) Purge(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && e.expired(now) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed, nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	return nil
}

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
)

type entry struct {
	resp    *domain.CandleResponse
	expires time.Time
}

// MemoryCache is a process-local TTL map. Expired entries are dropped on
// access and swept on every Set.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*domain.CandleResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return clone(e.resp), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, resp *domain.CandleResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{resp: clone(resp), expires: now.Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

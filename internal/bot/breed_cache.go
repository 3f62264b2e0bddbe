package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// breedCache holds the last breed list fetched by any authenticated chat.
// The list is the same for everyone, so one copy is enough.
type breedCache struct {
	mu        sync.RWMutex
	breeds    []string
	fetchedAt time.Time
	ttl       time.Duration
}

func newBreedCache(ttl time.Duration) *breedCache {
	return &breedCache{ttl: ttl}
}

func (c *breedCache) Get() ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.breeds == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil, false
	}
	return c.breeds, true
}

func (c *breedCache) Store(breeds []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breeds = breeds
	c.fetchedAt = time.Now()
}

func (c *breedCache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.breeds)
	c.breeds = nil
	return n
}

func (c *breedCache) ClearPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("Breed cache cleared", "count", c.clear())
		case <-ctx.Done():
			return
		}
	}
}

// Package cache is a small bounded-TTL string cache. The bot injects one
// instance for Telegram file URLs so repeated photo lookups within a burst
// do not hit the Bot API again. It is owned by the caller, never global.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

type TTLCache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache holding at most maxSize entries for ttl each. When
// full, the insertion evicts whatever is closest to expiry.
func New(ttl time.Duration, maxSize int) *TTLCache {
	return &TTLCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *TTLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *TTLCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	// Drop expired entries first; they are free space.
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= c.maxSize {
		var victim string
		var soonest time.Time
		for k, e := range c.entries {
			if victim == "" || e.expiresAt.Before(soonest) {
				victim = k
				soonest = e.expiresAt
			}
		}
		delete(c.entries, victim)
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(c.ttl)}
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

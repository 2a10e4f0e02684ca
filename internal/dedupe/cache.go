package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

// Cache keeps a fixed-size set of recently persisted post IDs. It saves a
// store round-trip when adjacent overlapping windows return the same item;
// the store's create-only insert remains the actual correctness guarantee.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// IsSeen returns true when the post ID has already been observed inside the
// ttl window. It does not mark the ID as seen; use MarkSeen() for that.
func (c *Cache) IsSeen(key string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.items[key]; ok {
		if now.Sub(ts) <= c.ttl {
			return true
		}
	}
	return false
}

// FilterUnseen returns the subset of IDs not yet observed, preserving
// order. Used by the run executor to drop repeats before the bulk insert.
func (c *Cache) FilterUnseen(keys []string) []string {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if ts, ok := c.items[key]; ok && now.Sub(ts) <= c.ttl {
			continue
		}
		out = append(out, key)
	}
	return out
}

// MarkSeen records that a post ID has been persisted.
func (c *Cache) MarkSeen(key string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = now
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.key]; ok {
			if ts == oldest.ts {
				delete(c.items, oldest.key)
			}
		}
	}
}

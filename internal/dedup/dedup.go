// Package dedup implements the short-window coalescing cache (spec.md
// §4.11) that collapses repeated light hook events arriving within the
// same session/event pair inside a small time window.
package dedup

import (
	"sync"
	"time"
)

// Cache coalesces "<session_id>:<event>" keys within a fixed window.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]float64
	window  time.Duration
}

// New creates a dedup cache with the given coalescing window.
func New(window time.Duration) *Cache {
	return &Cache{
		seen:   make(map[string]float64),
		window: window,
	}
}

// Key builds the dedup key for a session/event pair.
func Key(sessionID string, event string) string {
	return sessionID + ":" + event
}

// CheckAndMark returns true if this key was already seen within the window
// (i.e. this call should be treated as a dedup hit). On a miss or stale
// entry, it records now and returns false.
func (c *Cache) CheckAndMark(key string, now time.Time) bool {
	nowSecs := float64(now.UnixNano()) / 1e9

	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.seen[key]
	if ok && nowSecs-last < c.window.Seconds() {
		return true
	}
	c.seen[key] = nowSecs
	return false
}

// Sweep drops entries older than maxAge, run periodically by a background
// task (spec.md §4.10 background task #7).
func (c *Cache) Sweep(maxAge time.Duration, now time.Time) {
	cutoff := float64(now.UnixNano())/1e9 - maxAge.Seconds()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, ts := range c.seen {
		if ts < cutoff {
			delete(c.seen, k)
		}
	}
}

// Len reports the number of tracked keys, mainly for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

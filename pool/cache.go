package pool

import (
	"sync"
	"time"

	"github.com/wirefern/wspool/transport"
)

// entry is one pooled connection. busy marks the single permitted
// concurrent holder; idle holds the pending expiry timer and is only
// non-nil while the entry is not busy.
type entry struct {
	conn transport.Transport
	busy bool
	idle *time.Timer
}

// Cache maps session identifiers to at most one reusable connection
// each. It is an explicit store so tests and embedders can instantiate
// isolated caches; there is no package-level instance. The mutex
// guards the map and every entry's busy/timer state.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) get(sessionID string) (*entry, bool) {
	e, ok := c.entries[sessionID]
	return e, ok
}

func (c *Cache) set(sessionID string, e *entry) {
	c.entries[sessionID] = e
}

// remove deletes the entry for sessionID only while e still occupies
// it, so a stale timer or release cannot evict a successor entry.
func (c *Cache) remove(sessionID string, e *entry) bool {
	if cur, ok := c.entries[sessionID]; ok && cur == e {
		delete(c.entries, sessionID)
		return true
	}
	return false
}

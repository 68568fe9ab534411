package session

import (
	"context"
	"sync"
	"time"
)

// Cache memoizes Validate results for the lifetime of one request or one
// websocket connection.
//
// It replaces the implicit request-scoped lookup the surrounding framework
// used to provide: construct one Cache per request, never share it across
// requests, and call Forget on sign-out so a freshly invalidated token
// cannot be re-served from memory.
type Cache struct {
	mgr *Manager

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	identity Identity
	ok       bool
}

// NewCache wraps a Manager with request-scoped memoization.
func NewCache(mgr *Manager) *Cache {
	return &Cache{
		mgr:     mgr,
		entries: make(map[string]cacheEntry, 1),
	}
}

// Validate behaves like Manager.Validate, hitting the store at most once
// per token for this cache's lifetime. Negative results are memoized too.
func (c *Cache) Validate(ctx context.Context, now time.Time, tokenPlain string) (Identity, bool) {
	key := hashTokenHex(tokenPlain)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.identity, e.ok
	}
	c.mu.Unlock()

	identity, ok := c.mgr.Validate(ctx, now, tokenPlain)

	c.mu.Lock()
	c.entries[key] = cacheEntry{identity: identity, ok: ok}
	c.mu.Unlock()

	return identity, ok
}

// Forget drops the memoized entry for a token (sign-out path).
func (c *Cache) Forget(tokenPlain string) {
	key := hashTokenHex(tokenPlain)

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

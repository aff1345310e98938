package identity

import (
	"maps"
	"sync"
	"sync/atomic"
)

// TokenCache maps cache ids to tokens. Reads load an immutable snapshot and
// never block; writers copy the map under a mutex and publish it.
type TokenCache struct {
	mu      sync.Mutex
	entries atomic.Pointer[map[string]Token]
	onStore func(cacheID string, tok Token)
}

// NewTokenCache returns an empty cache.
func NewTokenCache() *TokenCache {
	c := &TokenCache{}
	empty := map[string]Token{}
	c.entries.Store(&empty)
	return c
}

// OnStore registers a callback run after every Store, e.g. to persist the
// cache. It runs outside the write lock.
func (c *TokenCache) OnStore(fn func(cacheID string, tok Token)) {
	c.mu.Lock()
	c.onStore = fn
	c.mu.Unlock()
}

// Get returns a copy of the token stored under cacheID.
func (c *TokenCache) Get(cacheID string) (*Token, bool) {
	tok, ok := (*c.entries.Load())[cacheID]
	if !ok {
		return nil, false
	}
	return &tok, true
}

// Store saves tok under cacheID. The last writer wins.
func (c *TokenCache) Store(cacheID string, tok *Token) {
	if tok == nil {
		return
	}
	c.mu.Lock()
	next := maps.Clone(*c.entries.Load())
	next[cacheID] = *tok
	c.entries.Store(&next)
	hook := c.onStore
	c.mu.Unlock()

	if hook != nil {
		hook(cacheID, *tok)
	}
}

// Remove drops cacheID.
func (c *TokenCache) Remove(cacheID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := *c.entries.Load()
	if _, ok := current[cacheID]; !ok {
		return
	}
	next := maps.Clone(current)
	delete(next, cacheID)
	c.entries.Store(&next)
}

// Len is the number of cached tokens.
func (c *TokenCache) Len() int { return len(*c.entries.Load()) }

// Snapshot returns a copy of every entry.
func (c *TokenCache) Snapshot() map[string]Token {
	return maps.Clone(*c.entries.Load())
}

// Restore replaces the contents with entries.
func (c *TokenCache) Restore(entries map[string]Token) {
	next := maps.Clone(entries)
	if next == nil {
		next = map[string]Token{}
	}
	c.mu.Lock()
	c.entries.Store(&next)
	c.mu.Unlock()
}

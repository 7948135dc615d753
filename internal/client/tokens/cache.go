package tokens

import "sync"

// AccessCache holds the current access token in memory only. It is never
// written to durable storage.
type AccessCache struct {
	mu    sync.RWMutex
	token string
}

// NewAccessCache returns an empty cache.
func NewAccessCache() *AccessCache {
	return &AccessCache{}
}

// Set replaces the cached access token.
func (c *AccessCache) Set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Get returns the cached token and whether one is present.
func (c *AccessCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// Clear drops the cached token.
func (c *AccessCache) Clear() {
	c.Set("")
}

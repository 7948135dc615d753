// Package session holds the set of refresh tokens the issuer currently honors.
package session

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Registry is the authority for refresh token revocation. A token is active
// while it is a member; removal is the only way to revoke it.
type Registry interface {
	Add(token string, expiresAt time.Time)
	Contains(token string) bool
	// Remove deletes token and reports whether it was present. Exactly one
	// of several concurrent removals of the same token observes true.
	Remove(token string) bool
	// Sweep drops entries whose expiry is not after now and returns how many were dropped.
	Sweep(now time.Time) int
	Len() int
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// MemoryRegistry is a process-lifetime registry. Tokens hash onto independent
// shards so operations on different tokens rarely contend.
type MemoryRegistry struct {
	shards [shardCount]*shard
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	r := &MemoryRegistry{}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]time.Time)}
	}
	return r
}

func (r *MemoryRegistry) shardFor(token string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return r.shards[h.Sum32()%shardCount]
}

// Add is idempotent; re-adding keeps the latest expiry.
func (r *MemoryRegistry) Add(token string, expiresAt time.Time) {
	if token == "" {
		return
	}
	s := r.shardFor(token)
	s.mu.Lock()
	s.entries[token] = expiresAt
	s.mu.Unlock()
}

func (r *MemoryRegistry) Contains(token string) bool {
	if token == "" {
		return false
	}
	s := r.shardFor(token)
	s.mu.RLock()
	_, ok := s.entries[token]
	s.mu.RUnlock()
	return ok
}

func (r *MemoryRegistry) Remove(token string) bool {
	if token == "" {
		return false
	}
	s := r.shardFor(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[token]; !ok {
		return false
	}
	delete(s.entries, token)
	return true
}

func (r *MemoryRegistry) Sweep(now time.Time) int {
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for token, expiresAt := range s.entries {
			if !expiresAt.After(now) {
				delete(s.entries, token)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (r *MemoryRegistry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

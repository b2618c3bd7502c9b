// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

// Package cache provides a small TTL cache used for provider
// availability status. Two implementations are provided: an in-process
// map cache and a Redis-backed cache for multi-replica deployments.
package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is a cached status value with its expiry.
type Entry struct {
	Value     string    `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry has passed its expiry.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// StatusCache is a TTL key-value cache. Implementations must be safe
// for concurrent use. Get must not return expired entries.
type StatusCache interface {
	// Get returns the entry for key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set stores an entry for key with the given TTL.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryCache is an in-process StatusCache. Expired entries are removed
// lazily on access; there is no background sweeper.
type MemoryCache struct {
	entries map[string]Entry
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Get implements StatusCache.
func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(c.now()) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := c.entries[key]; still && cur.Expired(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set implements StatusCache.
func (c *MemoryCache) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Delete implements StatusCache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

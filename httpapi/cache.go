package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Cache is the interface for caching list responses. Implement it
// with your preferred backend (Redis, Memcached, in-memory); the
// bundled MemoryCache covers single-process deployments.
type Cache interface {
	// Get retrieves a value. Returns nil, nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL; zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values whose key has the prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes everything.
	Clear(ctx context.Context) error
}

// CacheKey identifies one cached list response. Keys are prefixed
// with the table name so a write on a table invalidates exactly that
// table's entries.
type CacheKey struct {
	Table string
	Body  []byte
}

// String renders the key as <table>:list:<sha256(body)>.
func (k CacheKey) String() string {
	sum := sha256.Sum256(k.Body)
	return k.Table + ":list:" + hex.EncodeToString(sum[:])
}

// invalidate drops every cached response for the table after a write.
func (rt *Runtime) invalidate(ctx context.Context, table string) {
	if rt.cache == nil {
		return
	}
	if err := rt.cache.DeletePrefix(ctx, table+":"); err != nil {
		rt.log.WithError(err).WithField("table", table).Warn("cache invalidation failed")
	}
}

// MemoryCache is a process-local Cache with lazy TTL expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}
	return e.value, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// DeletePrefix implements Cache.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

package datasource

import (
	"context"
	"sync"
	"time"

	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

// InMemoryCachingAttributeSource wraps an attribute source with a per-role cache.
// Absent mappings are cached like present ones; failed lookups are not cached.
type InMemoryCachingAttributeSource struct {
	source  roleattr.AttributeSource
	ttl     time.Duration
	clock   clock.Clock
	mu      sync.RWMutex
	entries map[roleattr.Role]*cacheEntry
}

// cacheEntry stores cached attributes with expiration
type cacheEntry struct {
	attrs     roleattr.Attributes
	expiresAt time.Time
}

// InMemoryCachingOption is a functional option for configuring InMemoryCachingAttributeSource
type InMemoryCachingOption func(*InMemoryCachingAttributeSource)

// WithClock sets the clock for the caching attribute source
func WithClock(clk clock.Clock) InMemoryCachingOption {
	return func(c *InMemoryCachingAttributeSource) {
		c.clock = clk
	}
}

// NewInMemoryCachingAttributeSource caches lookups of source for ttl.
// A zero ttl never expires entries.
func NewInMemoryCachingAttributeSource(source roleattr.AttributeSource, ttl time.Duration, opts ...InMemoryCachingOption) *InMemoryCachingAttributeSource {
	c := &InMemoryCachingAttributeSource{
		source:  source,
		ttl:     ttl,
		clock:   clock.NewSystemClock(),
		entries: make(map[roleattr.Role]*cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RoleAttributes checks the cache first, then resolves from the source on miss
func (c *InMemoryCachingAttributeSource) RoleAttributes(ctx context.Context, role roleattr.Role) (roleattr.Attributes, error) {
	c.mu.RLock()
	entry, found := c.entries[role]
	c.mu.RUnlock()

	if found {
		if entry.expiresAt.IsZero() || c.clock.Now().Before(entry.expiresAt) {
			return cloneAttributes(entry.attrs), nil
		}
		c.mu.Lock()
		delete(c.entries, role)
		c.mu.Unlock()
	}

	attrs, err := c.source.RoleAttributes(ctx, role)
	if err != nil {
		return nil, err
	}

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.clock.Now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[role] = &cacheEntry{attrs: cloneAttributes(attrs), expiresAt: expiresAt}
	c.mu.Unlock()

	return attrs, nil
}

// Cleanup removes expired entries from the cache
func (c *InMemoryCachingAttributeSource) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for role, entry := range c.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(c.entries, role)
		}
	}
}

// Size returns the number of cached roles
func (c *InMemoryCachingAttributeSource) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cloneAttributes copies the mapping and its value lists; nil stays nil
func cloneAttributes(attrs roleattr.Attributes) roleattr.Attributes {
	if attrs == nil {
		return nil
	}
	out := make(roleattr.Attributes, len(attrs))
	for name, values := range attrs {
		if values == nil {
			out[name] = nil
			continue
		}
		out[name] = append(make([]string, 0, len(values)), values...)
	}
	return out
}

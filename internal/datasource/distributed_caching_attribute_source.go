package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang/groupcache"

	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

// DistributedCachingAttributeSource wraps an attribute source in a groupcache group.
// No peer pool is registered, so the group caches in this process only and
// concurrent misses for one role share a single lookup.
type DistributedCachingAttributeSource struct {
	group *groupcache.Group
	ttl   time.Duration
	clock clock.Clock
}

// DistributedCachingConfig configures the distributed caching attribute source
type DistributedCachingConfig struct {
	// GroupName must be the same on every peer.
	// Default: role-attributes
	GroupName string

	// CacheSizeBytes is the maximum size of the cache in bytes
	// Default: 64MB
	CacheSizeBytes int64

	// TTL rounds cache keys to intervals so entries expire as intervals pass.
	// Zero keeps entries until evicted.
	TTL time.Duration

	// Clock defaults to the system clock
	Clock clock.Clock
}

// cachedAttributes is the value stored in the group.
// Present distinguishes an absent mapping from an empty one.
type cachedAttributes struct {
	Present    bool                `json:"present"`
	Attributes roleattr.Attributes `json:"attributes,omitempty"`
}

// NewDistributedCachingAttributeSource registers a groupcache group backed by source.
// Group names are process-global, so registering a name twice is an error.
func NewDistributedCachingAttributeSource(source roleattr.AttributeSource, config DistributedCachingConfig) (*DistributedCachingAttributeSource, error) {
	if config.GroupName == "" {
		config.GroupName = "role-attributes"
	}
	if config.CacheSizeBytes == 0 {
		config.CacheSizeBytes = 64 << 20
	}
	if config.Clock == nil {
		config.Clock = clock.NewSystemClock()
	}
	if groupcache.GetGroup(config.GroupName) != nil {
		return nil, fmt.Errorf("groupcache group %q is already registered", config.GroupName)
	}

	// Called on cache miss, possibly on another peer
	getter := groupcache.GetterFunc(func(ctx context.Context, key string, dest groupcache.Sink) error {
		if config.TTL > 0 {
			key = stripTTLSuffix(key)
		}
		var role roleattr.Role
		if err := json.Unmarshal([]byte(key), &role); err != nil {
			return fmt.Errorf("failed to decode cache key: %w", err)
		}

		attrs, err := source.RoleAttributes(ctx, role)
		if err != nil {
			return err
		}

		entryBytes, err := json.Marshal(cachedAttributes{Present: attrs != nil, Attributes: attrs})
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry: %w", err)
		}
		return dest.SetBytes(entryBytes)
	})

	return &DistributedCachingAttributeSource{
		group: groupcache.NewGroup(config.GroupName, config.CacheSizeBytes, getter),
		ttl:   config.TTL,
		clock: config.Clock,
	}, nil
}

// RoleAttributes fetches through the group, which resolves from the source on miss
func (c *DistributedCachingAttributeSource) RoleAttributes(ctx context.Context, role roleattr.Role) (roleattr.Attributes, error) {
	keyBytes, err := json.Marshal(role)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache key: %w", err)
	}
	key := string(keyBytes)
	if c.ttl > 0 {
		key = fmt.Sprintf("%s:ttl:%d", key, roundTimestampToInterval(c.clock.Now(), c.ttl).Unix())
	}

	var cachedBytes []byte
	if err := c.group.Get(ctx, key, groupcache.AllocatingByteSliceSink(&cachedBytes)); err != nil {
		return nil, err
	}

	var entry cachedAttributes
	if err := json.Unmarshal(cachedBytes, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached entry: %w", err)
	}
	if !entry.Present {
		return nil, nil
	}
	if entry.Attributes == nil {
		return roleattr.Attributes{}, nil
	}
	return entry.Attributes, nil
}

// roundTimestampToInterval truncates t to a multiple of interval since the epoch.
// With a 5 minute interval 10:07:30 becomes 10:05:00.
func roundTimestampToInterval(t time.Time, interval time.Duration) time.Time {
	intervalNano := interval.Nanoseconds()
	return time.Unix(0, (t.UnixNano()/intervalNano)*intervalNano)
}

// stripTTLSuffix removes the ":ttl:<unix>" suffix from a cache key
func stripTTLSuffix(key string) string {
	if idx := strings.LastIndex(key, ":ttl:"); idx >= 0 {
		return key[:idx]
	}
	return key
}

package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/shopimport/internal/domain"
	"github.com/JonMunkholm/shopimport/internal/metrics"
)

// PreloadPageSize is the page size used by LookupCache.Preload.
const PreloadPageSize = 1000

// LookupCache resolves codes of reference data, e.g. catalog or attribute
// codes, to items. Entries are loaded lazily and memoized for the lifetime
// of the cache; a missing code is looked up again on the next call.
//
// The cache is safe for concurrent use but is meant to live for one import
// run. It never invalidates entries.
type LookupCache struct {
	manager    domain.Manager
	codeKey    string
	discKey    string
	conditions map[string]string
	metrics    *metrics.ImportMetrics

	mu      sync.Mutex
	entries map[string]*domain.Item
}

// CacheOption configures a LookupCache.
type CacheOption func(*LookupCache)

// WithDiscriminator keys entries by code and the value of key, e.g.
// "attribute.type".
func WithDiscriminator(key string) CacheOption {
	return func(c *LookupCache) { c.discKey = key }
}

// WithCondition restricts all lookups to items where key equals value.
func WithCondition(key, value string) CacheOption {
	return func(c *LookupCache) { c.conditions[key] = value }
}

// WithCacheMetrics records hits and misses.
func WithCacheMetrics(m *metrics.ImportMetrics) CacheOption {
	return func(c *LookupCache) { c.metrics = m }
}

// NewLookupCache creates an empty cache over the items of manager.
func NewLookupCache(manager domain.Manager, opts ...CacheOption) *LookupCache {
	c := &LookupCache{
		manager:    manager,
		codeKey:    domain.KeyPrefix(manager.Resource()) + "code",
		conditions: make(map[string]string),
		entries:    make(map[string]*domain.Item),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(code, disc string) string { return code + "\x00" + disc }

// Get returns the item with code and the optional discriminator value, or
// nil if none exists.
func (c *LookupCache) Get(ctx context.Context, code string, disc ...string) (*domain.Item, error) {
	var d string
	if len(disc) > 0 {
		d = disc[0]
	}
	key := cacheKey(code, d)
	resource := c.manager.Resource()

	c.mu.Lock()
	item, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		c.metrics.RecordCacheLookup(resource, "hit")
		return item, nil
	}

	filter := c.filter().Eq(c.codeKey, code).Slice(0, 1)
	if c.discKey != "" && d != "" {
		filter.Eq(c.discKey, d)
	}
	items, err := c.manager.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("lookup %s %q: %w", resource, code, err)
	}
	if len(items) == 0 {
		c.metrics.RecordCacheLookup(resource, "miss")
		return nil, nil
	}

	c.metrics.RecordCacheLookup(resource, "found")
	c.mu.Lock()
	c.entries[key] = items[0]
	c.mu.Unlock()
	return items[0], nil
}

// ID returns the id of the item with code, or "" if none exists.
func (c *LookupCache) ID(ctx context.Context, code string, disc ...string) (string, error) {
	item, err := c.Get(ctx, code, disc...)
	if err != nil || item == nil {
		return "", err
	}
	return item.ID(), nil
}

// Set stores item under its code and discriminator, replacing any entry.
func (c *LookupCache) Set(item *domain.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.keyOf(item)] = item
}

// Preload loads all items matching the cache conditions. It returns the
// number of items loaded.
func (c *LookupCache) Preload(ctx context.Context) (int, error) {
	total := 0
	for offset := 0; ; offset += PreloadPageSize {
		items, err := c.manager.Search(ctx, c.filter().Slice(offset, PreloadPageSize))
		if err != nil {
			return total, fmt.Errorf("preload %s: %w", c.manager.Resource(), err)
		}

		c.mu.Lock()
		for _, item := range items {
			c.entries[c.keyOf(item)] = item
		}
		c.mu.Unlock()

		total += len(items)
		if len(items) < PreloadPageSize {
			return total, nil
		}
	}
}

// Len returns the number of cached entries.
func (c *LookupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *LookupCache) keyOf(item *domain.Item) string {
	var d string
	if c.discKey != "" {
		d = item.ToMap()[c.discKey]
	}
	return cacheKey(item.Code(), d)
}

func (c *LookupCache) filter() *domain.Filter {
	f := domain.NewFilter()
	for k, v := range c.conditions {
		f.Eq(k, v)
	}
	return f
}

// CacheSet hands out one LookupCache per resource. It belongs to one
// worker of an import run, so processors of the same chain share lookups.
type CacheSet struct {
	managers domain.ManagerSource
	metrics  *metrics.ImportMetrics

	mu     sync.Mutex
	caches map[string]*LookupCache
}

// NewCacheSet creates an empty set.
func NewCacheSet(managers domain.ManagerSource, m *metrics.ImportMetrics) *CacheSet {
	return &CacheSet{
		managers: managers,
		metrics:  m,
		caches:   make(map[string]*LookupCache),
	}
}

// For returns the cache of resource, creating it with opts on first use.
// Options of later calls for the same resource are ignored.
func (s *CacheSet) For(resource string, opts ...CacheOption) (*LookupCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.caches[resource]; ok {
		return c, nil
	}

	manager, err := s.managers.Manager(resource)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", resource, err)
	}
	opts = append([]CacheOption{WithCacheMetrics(s.metrics)}, opts...)
	c := NewLookupCache(manager, opts...)
	s.caches[resource] = c
	return c, nil
}

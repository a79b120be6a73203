package tenant

import (
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedResolver memoizes successful resolutions by request host.
// Failures are not cached. When the inner resolver can reload its
// configuration, register Purge with it (FileResolver.OnReload) so
// cached entries never outlive a reload.
type CachedResolver struct {
	inner Resolver
	cache *lru.Cache[string, Config]
}

// NewCachedResolver wraps a resolver with an LRU cache of the given size
func NewCachedResolver(inner Resolver, size int) (*CachedResolver, error) {
	cache, err := lru.New[string, Config](size)
	if err != nil {
		return nil, err
	}
	return &CachedResolver{
		inner: inner,
		cache: cache,
	}, nil
}

// Resolve returns the cached configuration for the request host, falling
// back to the inner resolver on miss
func (c *CachedResolver) Resolve(r *http.Request) (*Config, error) {
	host := requestHost(r)

	if cfg, ok := c.cache.Get(host); ok {
		return &cfg, nil
	}

	cfg, err := c.inner.Resolve(r)
	if err != nil {
		return nil, err
	}

	c.cache.Add(host, *cfg)
	return cfg, nil
}

// Invalidate drops a host from the cache
func (c *CachedResolver) Invalidate(host string) {
	c.cache.Remove(host)
}

// Purge drops every cached entry
func (c *CachedResolver) Purge() {
	c.cache.Purge()
}

package jwks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/astro-web3/permission-filter/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss is returned by a KeySetCache when no entry exists for a key.
var ErrCacheMiss = errors.New("jwks: cache miss")

// KeySetCache stores resolved key sets across calls. Implemented in-memory
// here and on Redis in internal/infra/cache.
type KeySetCache interface {
	Get(ctx context.Context, key string) (*KeySet, error)
	Set(ctx context.Context, key string, keySet *KeySet, ttl time.Duration) error
}

const DefaultCacheTTL = time.Hour

// CachingSource wraps a Source with an explicit, TTL-bounded cache.
// Concurrent refreshes for the same source collapse into one fetch. When a
// refresh fails, the last successfully resolved key set is served so that
// transient endpoint outages do not fail every verification.
type CachingSource struct {
	source   Source
	cache    KeySetCache
	cacheKey string
	ttl      time.Duration

	sfGroup singleflight.Group

	mu   sync.RWMutex
	last *KeySet
}

func NewCachingSource(source Source, cache KeySetCache, cacheKey string, ttl time.Duration) *CachingSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingSource{
		source:   source,
		cache:    cache,
		cacheKey: cacheKey,
		ttl:      ttl,
	}
}

func (c *CachingSource) Resolve(ctx context.Context) (*KeySet, error) {
	cached, err := c.cache.Get(ctx, c.cacheKey)
	if err == nil && cached != nil {
		return cached, nil
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		logger.WarnContext(ctx, "key set cache read failed, refreshing from source",
			slog.String("error", err.Error()))
	}

	result, err, _ := c.sfGroup.Do(c.cacheKey, func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		c.mu.RLock()
		last := c.last
		c.mu.RUnlock()
		if last != nil {
			logger.WarnContext(ctx, "key set refresh failed, serving last known key set",
				slog.String("error", err.Error()))
			return last, nil
		}
		return nil, err
	}

	keySet, ok := result.(*KeySet)
	if !ok || keySet == nil {
		return nil, ErrSourceUnreachable
	}
	return keySet, nil
}

func (c *CachingSource) refresh(ctx context.Context) (*KeySet, error) {
	keySet, err := c.source.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.last = keySet
	c.mu.Unlock()

	if setErr := c.cache.Set(ctx, c.cacheKey, keySet, c.ttl); setErr != nil {
		logger.WarnContext(ctx, "failed to write key set cache",
			slog.String("error", setErr.Error()))
	}

	return keySet, nil
}

type memoryCacheEntry struct {
	keySet    *KeySet
	expiresAt time.Time
}

// MemoryKeySetCache is the default KeySetCache when Redis is not wired.
type MemoryKeySetCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

func NewMemoryKeySetCache() *MemoryKeySetCache {
	return &MemoryKeySetCache{
		entries: make(map[string]memoryCacheEntry),
	}
}

func (m *MemoryKeySetCache) Get(_ context.Context, key string) (*KeySet, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	return entry.keySet, nil
}

func (m *MemoryKeySetCache) Set(_ context.Context, key string, keySet *KeySet, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryCacheEntry{
		keySet:    keySet,
		expiresAt: time.Now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

var (
	_ Source      = (*CachingSource)(nil)
	_ KeySetCache = (*MemoryKeySetCache)(nil)
)

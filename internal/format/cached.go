package format

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/livetemplate/resultplay/internal/cache"
)

// cacheEntries bounds the number of remembered results.
const cacheEntries = 256

// Cached reuses the results of a slow formatter for text it has already
// formatted. Failures are not cached.
type Cached struct {
	inner Formatter
	ttl   time.Duration
	cache *cache.MemoryCache[string]
}

// NewCached wraps inner. Call Close to stop the cache.
func NewCached(inner Formatter, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		ttl:   ttl,
		cache: cache.NewMemoryCache[string](cacheEntries),
	}
}

// Name returns the wrapped formatter's name.
func (c *Cached) Name() string { return c.inner.Name() }

// Format returns the remembered result for src or runs the wrapped formatter.
func (c *Cached) Format(ctx context.Context, src string) (string, error) {
	sum := sha256.Sum256([]byte(src))
	key := hex.EncodeToString(sum[:])

	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}
	out, err := c.inner.Format(ctx, src)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, out, c.ttl)
	return out, nil
}

// Close stops the cache and closes the wrapped formatter.
func (c *Cached) Close(ctx context.Context) error {
	c.cache.Stop()
	return Close(ctx, c.inner)
}

// withCache wraps f unless ttl is zero.
func withCache(f Formatter, ttl time.Duration) Formatter {
	if ttl <= 0 {
		return f
	}
	return NewCached(f, ttl)
}

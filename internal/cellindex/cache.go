package cellindex

import (
	"context"
	"fmt"
	"math"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedResolver wraps a Resolver with an in-memory LRU cache keyed by the
// coordinate rounded to 1e-6 degrees. Misses are cached too, since grid
// points outside every cell repeat in every file of a run.
type CachedResolver struct {
	inner   Resolver
	cache   *lru.Cache[pointKey, lookup]
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a resolver holding at
// most maxEntries coordinates. metrics may be nil.
func NewCachedResolver(inner Resolver, maxEntries int, metrics *observability.Metrics) (*CachedResolver, error) {
	cache, err := lru.New[pointKey, lookup](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("cell cache: %w", err)
	}
	return &CachedResolver{inner: inner, cache: cache, metrics: metrics}, nil
}

type pointKey struct {
	lat, lon int64
}

type lookup struct {
	match domain.Match
	miss  bool
}

func keyFor(lat, lon float64) pointKey {
	return pointKey{lat: int64(math.Round(lat * 1e6)), lon: int64(math.Round(lon * 1e6))}
}

func (c *CachedResolver) Resolve(ctx context.Context, lat, lon float64) (domain.Match, error) {
	key := keyFor(lat, lon)
	if v, ok := c.cache.Get(key); ok {
		c.observe("hit")
		if v.miss {
			return domain.Match{}, domain.ErrNotFound
		}
		return v.match, nil
	}
	c.observe("miss")

	m, err := c.inner.Resolve(ctx, lat, lon)
	switch {
	case err == nil:
		c.cache.Add(key, lookup{match: m})
	case IsMiss(err):
		c.cache.Add(key, lookup{miss: true})
	}
	// Other errors are transient and not cached.
	return m, err
}

func (c *CachedResolver) observe(result string) {
	if c.metrics != nil {
		c.metrics.CellLookups.WithLabelValues(result).Inc()
	}
}

// Len returns the number of cached coordinates.
func (c *CachedResolver) Len() int {
	return c.cache.Len()
}

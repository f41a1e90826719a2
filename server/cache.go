package server

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	predCacheSize = 4096

	// distanceBucketGranularity groups distances to the hundredth of a
	// mile so nearby queries share a cache entry.
	distanceBucketGranularity = 100
)

type predKey struct {
	generation uint64
	distance   int64
	hour       int
}

type predValue struct {
	fare    float64
	revenue float64
}

// predCache memoizes recent predictions. Keys carry the registry generation,
// so a registry swap implicitly invalidates every older entry.
type predCache struct {
	cache *lru.Cache[predKey, predValue]
}

func newPredCache() (*predCache, error) {
	cache, err := lru.New[predKey, predValue](predCacheSize)
	if err != nil {
		return nil, err
	}
	return &predCache{cache: cache}, nil
}

func (c *predCache) key(generation uint64, distance float64, hour int) predKey {
	return predKey{
		generation: generation,
		distance:   int64(math.Round(distance * distanceBucketGranularity)),
		hour:       hour,
	}
}

func (c *predCache) get(k predKey) (predValue, bool) {
	return c.cache.Get(k)
}

func (c *predCache) put(k predKey, v predValue) {
	c.cache.Add(k, v)
}

package storage

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CacheValue is a stored crunch result.
type CacheValue struct {
	Body         []byte
	ContentType  string
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
	Crunched     bool
	Fallback     string
}

// ResultCache keeps crunch results in memory, weighted by body size.
type ResultCache struct {
	cache *ristretto.Cache[string, CacheValue]
	ttl   time.Duration
}

type CacheOptions struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// NewResultCache creates a ResultCache; zero options fall back to 10M
// counters, 1GB and 64 buffer items.
func NewResultCache(opts CacheOptions) (*ResultCache, error) {
	cacheConfig := &ristretto.Config[string, CacheValue]{
		NumCounters: 1e7,     // number of keys to track frequency of (10M).
		MaxCost:     1 << 30, // maximum cost of cache (1GB).
		BufferItems: 64,      // number of keys per Get buffer.
	}

	if opts.BufferItems > 0 {
		cacheConfig.BufferItems = opts.BufferItems
	}

	if opts.MaxCost > 0 {
		cacheConfig.MaxCost = opts.MaxCost
	}

	if opts.NumCounters > 0 {
		cacheConfig.NumCounters = opts.NumCounters
	}

	cache, err := ristretto.NewCache(cacheConfig)
	if err != nil {
		return nil, err
	}

	return &ResultCache{cache: cache, ttl: opts.TTL}, nil
}

// Get retrieves a result from the cache
func (r *ResultCache) Get(key string) (CacheValue, bool) {
	return r.cache.Get(key)
}

// Set stores a result; the write becomes visible asynchronously.
func (r *ResultCache) Set(key string, value CacheValue) bool {
	cost := int64(len(value.Body))
	if cost == 0 {
		cost = 1
	}
	return r.cache.SetWithTTL(key, value, cost, r.ttl)
}

// Wait blocks until pending writes are applied.
func (r *ResultCache) Wait() {
	r.cache.Wait()
}

// Delete removes a result from the cache
func (r *ResultCache) Delete(key string) {
	r.cache.Del(key)
}

// Close stops the cache's background goroutines
func (r *ResultCache) Close() {
	r.cache.Close()
}

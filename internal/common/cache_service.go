package common

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// LimiterCache hands out one token bucket per client key. Buckets of clients
// that stay idle for longer than the expiry are evicted.
type LimiterCache struct {
	mu    sync.Mutex
	cache *cache.Cache
	limit rate.Limit
	burst int
	ttl   time.Duration
}

func NewLimiterCache(limit rate.Limit, burst int, idleExpiry, cleanUpInterval time.Duration) *LimiterCache {
	return &LimiterCache{
		cache: cache.New(idleExpiry, cleanUpInterval),
		limit: limit,
		burst: burst,
		ttl:   idleExpiry,
	}
}

// Get returns the limiter for key, creating it on first use. Every call
// pushes the key's expiry out again.
func (lc *LimiterCache) Get(key string) *rate.Limiter {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if val, found := lc.cache.Get(key); found {
		limiter := val.(*rate.Limiter)
		lc.cache.Set(key, limiter, lc.ttl)
		return limiter
	}

	limiter := rate.NewLimiter(lc.limit, lc.burst)
	lc.cache.Set(key, limiter, lc.ttl)
	return limiter
}

// Allow reports whether key may make one more request now
func (lc *LimiterCache) Allow(key string) bool {
	return lc.Get(key).Allow()
}

func (lc *LimiterCache) Len() int {
	return lc.cache.ItemCount()
}

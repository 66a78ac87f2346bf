package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-host token bucket.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// DefaultRateLimitConfig returns 10 requests per second with a burst of 20.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{PerSecond: 10, Burst: 20}
}

// RateLimiter keeps one token bucket per host.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewRateLimiter returns a limiter allowing ratePerSecond requests per host.
// A non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rateLimit:  limit,
		burstLimit: max(burst, 1),
	}
}

// NewRateLimiterFromConfig builds a RateLimiter from cfg.
func NewRateLimiterFromConfig(cfg RateLimitConfig) *RateLimiter {
	return NewRateLimiter(cfg.PerSecond, cfg.Burst)
}

// Allow reports whether a request to host may proceed now.
func (r *RateLimiter) Allow(host string) bool {
	return r.limiter(host).Allow()
}

// Wait blocks until a request to host is allowed or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	return r.limiter(host).Wait(ctx)
}

func (r *RateLimiter) limiter(host string) *rate.Limiter {
	r.mu.RLock()
	l, ok := r.limiters[host]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.limiters[host]; ok {
		return l
	}
	l = rate.NewLimiter(r.rateLimit, r.burstLimit)
	r.limiters[host] = l
	return l
}

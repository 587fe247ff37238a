package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-service rate limiting using a token bucket.
// Each remote collaborator (node, indexer, custodial backend) gets its own bucket.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	overrides  map[string]rate.Limit
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewRateLimiter creates a new rate limiter with the specified rate and burst.
// ratePerSecond is requests per second, burst is the maximum burst size.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		overrides:  make(map[string]rate.Limit),
		rateLimit:  rate.Limit(ratePerSecond),
		burstLimit: burst,
	}
}

// DefaultRateLimiter returns a rate limiter of 5 requests/second with a burst of 10.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(5, 10)
}

// SetServiceRate overrides the rate for one service. It must be called before
// the service's first request.
func (r *RateLimiter) SetServiceRate(service string, ratePerSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[service] = rate.Limit(ratePerSecond)
	delete(r.limiters, service)
}

// Allow reports whether a request to the service may proceed now.
func (r *RateLimiter) Allow(service string) bool {
	return r.getLimiter(service).Allow()
}

// Wait blocks until a request to the service is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context, service string) error {
	return r.getLimiter(service).Wait(ctx)
}

// getLimiter returns the limiter for the service, creating one if needed.
func (r *RateLimiter) getLimiter(service string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[service]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[service]; exists {
		return limiter
	}

	limit := r.rateLimit
	if override, ok := r.overrides[service]; ok {
		limit = override
	}
	limiter = rate.NewLimiter(limit, r.burstLimit)
	r.limiters[service] = limiter
	return limiter
}

package fee

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/coincore/internal/money"
)

// CacheRecorder receives cache hit/miss observations.
type CacheRecorder interface {
	RecordCacheLookup(cache string, hit bool)
}

// SessionCache holds one quote per fee currency for the lifetime of a single
// pending transaction. Concurrent misses for the same currency share one fetch.
type SessionCache struct {
	source   Source
	recorder CacheRecorder

	group  singleflight.Group
	mu     sync.RWMutex
	quotes map[string]*Quote
}

// NewSessionCache creates an empty cache over source. recorder may be nil.
func NewSessionCache(source Source, recorder CacheRecorder) *SessionCache {
	return &SessionCache{
		source:   source,
		recorder: recorder,
		quotes:   make(map[string]*Quote),
	}
}

// CurrentFee returns the cached quote or fetches and caches a new one.
// Failed fetches are not cached. A caller that joined a fetch whose leader
// was cancelled retries under its own context.
func (c *SessionCache) CurrentFee(ctx context.Context, currency money.Currency) (*Quote, error) {
	if q, ok := c.Cached(currency); ok {
		c.record(true)
		return q, nil
	}
	c.record(false)

	for {
		led := false
		ch := c.group.DoChan(currency.Code, func() (any, error) {
			led = true
			return c.fetch(ctx, currency)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(*Quote), nil
			}
			if !led && isContextError(res.Err) && ctx.Err() == nil {
				continue
			}
			return nil, res.Err
		}
	}
}

func (c *SessionCache) fetch(ctx context.Context, currency money.Currency) (*Quote, error) {
	q, err := c.source.CurrentFee(ctx, currency)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.quotes[currency.Code] = q
	c.mu.Unlock()
	return q, nil
}

// Cached returns the cached quote without fetching.
func (c *SessionCache) Cached(currency money.Currency) (*Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[currency.Code]
	return q, ok
}

// Invalidate drops every cached quote so the next lookup refreshes.
func (c *SessionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes = make(map[string]*Quote)
}

// Stale reports whether the cached quote for currency was fetched more than
// maxAge before now. Quotes without a fetch time never go stale.
func (c *SessionCache) Stale(currency money.Currency, now time.Time, maxAge time.Duration) bool {
	q, ok := c.Cached(currency)
	return ok && !q.FetchedAt.IsZero() && now.Sub(q.FetchedAt) > maxAge
}

func (c *SessionCache) record(hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup("fee", hit)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

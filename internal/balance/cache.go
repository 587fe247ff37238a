package balance

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/money"
)

// DefaultStaleness is the default duration after which cache entries are considered stale.
const DefaultStaleness = 30 * time.Second

// Cache stores last-known spendable balances.
type Cache struct {
	mu      sync.RWMutex     `json:"-"`
	Entries map[string]Entry `json:"entries"`
}

// Entry is a single cached balance.
type Entry struct {
	Chain     chain.ID  `json:"chain"`
	Address   string    `json:"address"`
	Balance   string    `json:"balance"`
	Symbol    string    `json:"symbol"`
	Token     string    `json:"token,omitempty"`
	Dirty     bool      `json:"dirty,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{Entries: make(map[string]Entry)}
}

// Key generates a cache key for an address and optional token contract.
func Key(chainID chain.ID, address, token string) string {
	if token != "" {
		return string(chainID) + ":" + address + ":" + token
	}
	return string(chainID) + ":" + address
}

// KeyFor returns the cache key of an account. Trading accounts are keyed by id.
func KeyFor(acct account.Account) string {
	addr := acct.Address
	if acct.IsCustodial() {
		addr = "trading/" + acct.ID
	}
	return Key(acct.Asset.Chain, addr, acct.Currency().Contract)
}

// Get retrieves an entry with its age.
func (c *Cache) Get(key string) (*Entry, bool, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.Entries[key]
	if !exists {
		return nil, false, 0
	}
	return &entry, true, time.Since(entry.UpdatedAt)
}

// Set stores a balance for an account and clears its dirty flag.
func (c *Cache) Set(acct account.Account, v money.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Entries[KeyFor(acct)] = Entry{
		Chain:     acct.Asset.Chain,
		Address:   acct.Address,
		Balance:   v.Decimal().String(),
		Symbol:    v.Currency().Code,
		Token:     acct.Currency().Contract,
		UpdatedAt: time.Now(),
	}
}

// Value returns the cached balance of an account when it is clean and younger than maxAge.
func (c *Cache) Value(acct account.Account, maxAge time.Duration) (money.Value, bool) {
	entry, ok, age := c.Get(KeyFor(acct))
	if !ok || entry.Dirty || age > maxAge {
		return money.Value{}, false
	}
	d, err := decimal.NewFromString(entry.Balance)
	if err != nil {
		return money.Value{}, false
	}
	return money.New(d, acct.Currency()), true
}

// MarkDirty forces the next read of the account to go to the provider.
func (c *Cache) MarkDirty(acct account.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := KeyFor(acct)
	if entry, ok := c.Entries[key]; ok {
		entry.Dirty = true
		c.Entries[key] = entry
	}
}

// Delete removes an entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Entries, key)
}

// Size returns the number of entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Entries)
}

// Prune removes entries older than maxAge.
func (c *Cache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for key, entry := range c.Entries {
		if entry.UpdatedAt.Before(cutoff) {
			delete(c.Entries, key)
			removed++
		}
	}
	return removed
}

type freshReadKey struct{}

// WithFreshRead marks ctx so CachedProvider bypasses the cache.
// Execute-time re-validation uses it to read the live balance.
func WithFreshRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReadKey{}, true)
}

// IsFreshRead reports whether ctx asks for live reads.
func IsFreshRead(ctx context.Context) bool {
	v, _ := ctx.Value(freshReadKey{}).(bool)
	return v
}

// CacheRecorder receives cache hit/miss observations.
type CacheRecorder interface {
	RecordCacheLookup(cache string, hit bool)
}

// CachedProvider serves recent balances from a Cache and writes live reads through.
// Pending-operation checks and fee balances always go to the inner provider.
type CachedProvider struct {
	inner    Provider
	cache    *Cache
	maxAge   time.Duration
	recorder CacheRecorder
}

// NewCachedProvider wraps inner. A zero maxAge uses DefaultStaleness.
func NewCachedProvider(inner Provider, cache *Cache, maxAge time.Duration, recorder CacheRecorder) *CachedProvider {
	if maxAge <= 0 {
		maxAge = DefaultStaleness
	}
	return &CachedProvider{inner: inner, cache: cache, maxAge: maxAge, recorder: recorder}
}

// SpendableBalance implements Provider.
func (p *CachedProvider) SpendableBalance(ctx context.Context, acct account.Account) (money.Value, error) {
	if !IsFreshRead(ctx) {
		if v, ok := p.cache.Value(acct, p.maxAge); ok {
			p.record(true)
			return v, nil
		}
	}
	p.record(false)

	v, err := p.inner.SpendableBalance(ctx, acct)
	if err != nil {
		return money.Value{}, err
	}
	p.cache.Set(acct, v)
	return v, nil
}

// HasPendingOperation implements Provider.
func (p *CachedProvider) HasPendingOperation(ctx context.Context, acct account.Account) (bool, error) {
	return p.inner.HasPendingOperation(ctx, acct)
}

// FeeBalance implements FeeBalance when the inner provider does.
func (p *CachedProvider) FeeBalance(ctx context.Context, acct account.Account) (money.Value, error) {
	fb, ok := p.inner.(FeeBalance)
	if !ok {
		return money.Zero(acct.Asset.FeeCurrency()), nil
	}
	return fb.FeeBalance(ctx, acct)
}

// MarkDirty invalidates the cached balance of an account.
func (p *CachedProvider) MarkDirty(acct account.Account) {
	p.cache.MarkDirty(acct)
}

func (p *CachedProvider) record(hit bool) {
	if p.recorder != nil {
		p.recorder.RecordCacheLookup("balance", hit)
	}
}

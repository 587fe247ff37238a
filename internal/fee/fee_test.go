package fee

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreassert "github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

type mockLogger struct {
	mu     sync.Mutex
	debugs []string
}

func (l *mockLogger) Debug(format string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, format)
}

func (l *mockLogger) Error(string, ...any) {}

type mockRecorder struct {
	fallbacks []string
	hits      int
	misses    int
}

func (r *mockRecorder) RecordFeeFallback(asset string) { r.fallbacks = append(r.fallbacks, asset) }

func (r *mockRecorder) RecordCacheLookup(_ string, hit bool) {
	if hit {
		r.hits++
		return
	}
	r.misses++
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"", Regular, false},
		{"regular", Regular, false},
		{"Priority", Priority, false},
		{"fast", Priority, false},
		{"low", Low, false},
		{"none", None, false},
		{"custom", Custom, false},
		{"turbo", None, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLevel(tc.in)
			if tc.err {
				require.ErrorIs(t, err, coreerr.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSet(t *testing.T) {
	t.Parallel()
	s := NewSet(Regular, Priority, Custom)
	assert.True(t, s.Contains(Regular))
	assert.True(t, s.Contains(Custom))
	assert.False(t, s.Contains(None))
	assert.False(t, s.Contains(Low))
	assert.False(t, s.Contains(Level(42)))
	assert.Equal(t, []Level{Regular, Priority, Custom}, s.Levels())
	assert.Equal(t, "regular,priority,custom", s.String())
	assert.Empty(t, Set(0).Levels())
}

func TestQuoteTotal(t *testing.T) {
	t.Parallel()
	q, ok := NewDefaults(Overrides{}).Quote(money.ETH)
	require.True(t, ok)

	// 50 gwei * 21000 = 0.00105 ETH
	assert.Equal(t, "0.00105 ETH", q.Total(Regular, q.GasLimit, nil).String())
	assert.Equal(t, "0.0021 ETH", q.Total(Priority, q.GasLimit, nil).String())
	assert.Equal(t, "0.00063 ETH", q.Total(Low, q.GasLimit, nil).String())
	assert.Equal(t, "0.00105 ETH", q.Total(None, q.GasLimit, nil).String())

	custom := big.NewInt(2 * gwei)
	assert.Equal(t, "0.000042 ETH", q.Total(Custom, q.GasLimit, custom).String())
}

func TestQuotePerUnit_MissingTiersUseRegular(t *testing.T) {
	t.Parallel()
	q := &Quote{Currency: money.XLM, Regular: big.NewInt(100)}
	assert.Equal(t, int64(100), q.PerUnit(Low, nil).Int64())
	assert.Equal(t, int64(100), q.PerUnit(Priority, nil).Int64())
}

func TestQuotePerUnit_CustomWithoutPricePanics(t *testing.T) {
	t.Parallel()
	q := &Quote{Currency: money.BTC, Regular: big.NewInt(10)}
	perr := coreassert.Catch(func() { q.PerUnit(Custom, nil) })
	require.NotNil(t, perr)
	assert.Equal(t, "fee", perr.Component)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	d := NewDefaults(Overrides{BTCRegularSatVB: 12, XLMBaseFee: 200})

	btc, ok := d.Quote(money.BTC)
	require.True(t, ok)
	assert.Equal(t, int64(12), btc.Regular.Int64())
	assert.Equal(t, int64(DefaultBTCPrioritySatVB), btc.Priority.Int64())
	assert.Equal(t, SourceDefault, btc.Source)

	xlm, ok := d.Quote(money.XLM)
	require.True(t, ok)
	assert.Equal(t, int64(200), xlm.Regular.Int64())

	eth, ok := d.Quote(money.ETH)
	require.True(t, ok)
	assert.Equal(t, GasLimitTransfer, eth.GasLimit)
	assert.Equal(t, GasLimitTokenTransfer, eth.GasLimitContract)

	_, ok = d.Quote(money.USD)
	assert.False(t, ok)
}

func TestFallback(t *testing.T) {
	t.Parallel()

	t.Run("live quote passes through", func(t *testing.T) {
		t.Parallel()
		live := &Quote{Currency: money.ETH, Regular: big.NewInt(7 * gwei), Source: "node"}
		rec := &mockRecorder{}
		f := NewFallback(SourceFunc(func(context.Context, money.Currency) (*Quote, error) {
			return live, nil
		}), nil, nil, rec)

		q, err := f.CurrentFee(context.Background(), money.ETH)
		require.NoError(t, err)
		assert.Same(t, live, q)
		assert.Empty(t, rec.fallbacks)
	})

	t.Run("source error uses default", func(t *testing.T) {
		t.Parallel()
		logger := &mockLogger{}
		rec := &mockRecorder{}
		f := NewFallback(SourceFunc(func(context.Context, money.Currency) (*Quote, error) {
			return nil, errors.New("node down")
		}), nil, logger, rec)

		q, err := f.CurrentFee(context.Background(), money.BTC)
		require.NoError(t, err)
		assert.Equal(t, SourceDefault, q.Source)
		assert.Equal(t, int64(DefaultBTCRegularSatVB), q.Regular.Int64())
		assert.Equal(t, []string{"BTC"}, rec.fallbacks)
		assert.Len(t, logger.debugs, 1)
	})

	t.Run("zero regular price uses default", func(t *testing.T) {
		t.Parallel()
		f := NewFallback(SourceFunc(func(context.Context, money.Currency) (*Quote, error) {
			return &Quote{Currency: money.XLM, Regular: big.NewInt(0)}, nil
		}), nil, nil, nil)

		q, err := f.CurrentFee(context.Background(), money.XLM)
		require.NoError(t, err)
		assert.Equal(t, int64(DefaultXLMBaseFee), q.Regular.Int64())
	})

	t.Run("cancellation is not masked", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f := NewFallback(SourceFunc(func(ctx context.Context, _ money.Currency) (*Quote, error) {
			return nil, ctx.Err()
		}), nil, nil, nil)

		_, err := f.CurrentFee(ctx, money.ETH)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no default for currency", func(t *testing.T) {
		t.Parallel()
		f := NewFallback(SourceFunc(func(context.Context, money.Currency) (*Quote, error) {
			return nil, coreerr.ErrNetworkError
		}), nil, nil, nil)

		_, err := f.CurrentFee(context.Background(), money.USD)
		require.ErrorIs(t, err, coreerr.ErrNetworkError)
	})
}

func TestSessionCache(t *testing.T) {
	t.Parallel()

	t.Run("caches per currency", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		rec := &mockRecorder{}
		c := NewSessionCache(SourceFunc(func(_ context.Context, cur money.Currency) (*Quote, error) {
			calls.Add(1)
			return &Quote{Currency: cur, Regular: big.NewInt(1)}, nil
		}), rec)

		for i := 0; i < 3; i++ {
			q, err := c.CurrentFee(context.Background(), money.ETH)
			require.NoError(t, err)
			assert.Equal(t, money.ETH.Code, q.Currency.Code)
		}
		_, err := c.CurrentFee(context.Background(), money.BTC)
		require.NoError(t, err)

		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 2, rec.hits)
		assert.Equal(t, 2, rec.misses)

		c.Invalidate()
		_, ok := c.Cached(money.ETH)
		assert.False(t, ok)
		_, err = c.CurrentFee(context.Background(), money.ETH)
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		c := NewSessionCache(SourceFunc(func(context.Context, money.Currency) (*Quote, error) {
			if calls.Add(1) == 1 {
				return nil, coreerr.ErrNetworkError
			}
			return &Quote{Currency: money.XLM, Regular: big.NewInt(100)}, nil
		}), nil)

		_, err := c.CurrentFee(context.Background(), money.XLM)
		require.Error(t, err)
		q, err := c.CurrentFee(context.Background(), money.XLM)
		require.NoError(t, err)
		assert.Equal(t, int64(100), q.Regular.Int64())
	})

	t.Run("concurrent misses share one fetch", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		release := make(chan struct{})
		c := NewSessionCache(SourceFunc(func(context.Context, money.Currency) (*Quote, error) {
			calls.Add(1)
			<-release
			return &Quote{Currency: money.ETH, Regular: big.NewInt(1)}, nil
		}), nil)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = c.CurrentFee(context.Background(), money.ETH)
			}()
		}
		// Let the goroutines reach the shared fetch before releasing it.
		require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		_, ok := c.Cached(money.ETH)
		assert.True(t, ok)
	})

	t.Run("cancelled leader does not fail joined callers", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		entered := make(chan struct{})
		c := NewSessionCache(SourceFunc(func(ctx context.Context, cur money.Currency) (*Quote, error) {
			if calls.Add(1) == 1 {
				close(entered)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return &Quote{Currency: cur, Regular: big.NewInt(7)}, nil
		}), nil)

		leaderCtx, cancel := context.WithCancel(context.Background())
		leaderErr := make(chan error, 1)
		go func() {
			_, err := c.CurrentFee(leaderCtx, money.ETH)
			leaderErr <- err
		}()
		<-entered

		joined := make(chan error, 1)
		var q *Quote
		go func() {
			var err error
			q, err = c.CurrentFee(context.Background(), money.ETH)
			joined <- err
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()

		require.ErrorIs(t, <-leaderErr, context.Canceled)
		require.NoError(t, <-joined)
		assert.Equal(t, int64(7), q.Regular.Int64())
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("caller cancellation returns without waiting", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		defer close(release)
		c := NewSessionCache(SourceFunc(func(context.Context, money.Currency) (*Quote, error) {
			<-release
			return &Quote{Currency: money.BTC, Regular: big.NewInt(1)}, nil
		}), nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.CurrentFee(ctx, money.BTC)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("stale quotes", func(t *testing.T) {
		t.Parallel()
		fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		c := NewSessionCache(SourceFunc(func(_ context.Context, cur money.Currency) (*Quote, error) {
			return &Quote{Currency: cur, Regular: big.NewInt(1), FetchedAt: fetched}, nil
		}), nil)

		assert.False(t, c.Stale(money.ETH, fetched.Add(time.Hour), MaxQuoteAge), "nothing cached")
		_, err := c.CurrentFee(context.Background(), money.ETH)
		require.NoError(t, err)
		assert.False(t, c.Stale(money.ETH, fetched.Add(MaxQuoteAge), MaxQuoteAge))
		assert.True(t, c.Stale(money.ETH, fetched.Add(MaxQuoteAge+time.Second), MaxQuoteAge))
	})
}

func TestQuoteTransferGas(t *testing.T) {
	t.Parallel()
	q := &Quote{Currency: money.ETH, Regular: big.NewInt(gwei), GasLimit: 30000}
	assert.Equal(t, uint64(30000), q.TransferGas(money.ETH))
	assert.Equal(t, GasLimitTokenTransfer, q.TransferGas(money.USDC))

	empty := &Quote{Currency: money.ETH, Regular: big.NewInt(gwei)}
	assert.Equal(t, GasLimitTransfer, empty.TransferGas(money.ETH))
}

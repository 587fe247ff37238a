package xlm

import (
	"context"
	"math/big"
	"time"

	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// FeeSource quotes per-operation fees from Horizon fee statistics.
type FeeSource struct {
	client *Client
}

// NewFeeSource creates a fee source over client.
func NewFeeSource(client *Client) *FeeSource {
	return &FeeSource{client: client}
}

// CurrentFee implements fee.Source. Regular is the last ledger's base fee;
// priority is the 90th percentile of fees charged.
func (s *FeeSource) CurrentFee(ctx context.Context, currency money.Currency) (*fee.Quote, error) {
	if !currency.Equal(money.XLM) {
		return nil, coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{"fee_currency": currency.Code})
	}

	stats, err := s.client.FeeStats(ctx)
	if err != nil {
		return nil, err
	}

	base, ok := new(big.Int).SetString(stats.LastLedgerBaseFee, 10)
	if !ok || base.Sign() <= 0 {
		return nil, coreerr.Wrap(coreerr.ErrNetworkError, "invalid base fee %q", stats.LastLedgerBaseFee)
	}
	priority, ok := new(big.Int).SetString(stats.FeeCharged.P90, 10)
	if !ok || priority.Cmp(base) < 0 {
		priority = base
	}

	return &fee.Quote{
		Currency:  money.XLM,
		Low:       base,
		Regular:   base,
		Priority:  priority,
		GasLimit:  1,
		Source:    "horizon",
		FetchedAt: time.Now(),
	}, nil
}

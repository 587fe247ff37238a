package btc

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Confirmation targets, in blocks, for each fee level.
const (
	targetPriority = "1"
	targetRegular  = "6"
	targetLow      = "144"
)

// FeeSource quotes sat/vB rates from Esplora's fee estimates.
type FeeSource struct {
	client *Client
}

// NewFeeSource creates a fee source over client.
func NewFeeSource(client *Client) *FeeSource {
	return &FeeSource{client: client}
}

// CurrentFee implements fee.Source.
func (s *FeeSource) CurrentFee(ctx context.Context, currency money.Currency) (*fee.Quote, error) {
	if !currency.Equal(money.BTC) {
		return nil, coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{"fee_currency": currency.Code})
	}

	est, err := s.client.FeeEstimates(ctx)
	if err != nil {
		return nil, err
	}

	regular := rate(est, targetRegular)
	if regular == nil {
		return nil, coreerr.Wrap(coreerr.ErrNetworkError, "no %s-block fee estimate", targetRegular)
	}

	return &fee.Quote{
		Currency:  money.BTC,
		Low:       rate(est, targetLow),
		Regular:   regular,
		Priority:  rate(est, targetPriority),
		Source:    "esplora",
		FetchedAt: time.Now(),
	}, nil
}

// rate rounds an estimate up to whole sat/vB with a floor of 1.
func rate(est map[string]float64, target string) *big.Int {
	v, ok := est[target]
	if !ok || v <= 0 {
		return nil
	}
	return big.NewInt(int64(math.Max(1, math.Ceil(v))))
}

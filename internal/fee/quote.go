package fee

import (
	"context"
	"math/big"
	"time"

	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/money"
)

// Quote is a fee quote for one fee currency. Prices are per-unit minor amounts:
// wei per gas, satoshi per virtual byte, stroops per operation.
// Quotes are shared between callers and must not be mutated.
type Quote struct {
	Currency money.Currency
	Low      *big.Int
	Regular  *big.Int
	Priority *big.Int
	// GasLimit is the unit count of a plain transfer on account chains.
	GasLimit uint64
	// GasLimitContract is the unit count of a token contract transfer.
	GasLimitContract uint64
	Source           string
	FetchedAt        time.Time
}

// Source supplies current fee quotes for a fee currency.
type Source interface {
	CurrentFee(ctx context.Context, currency money.Currency) (*Quote, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, currency money.Currency) (*Quote, error)

// CurrentFee calls f.
func (f SourceFunc) CurrentFee(ctx context.Context, currency money.Currency) (*Quote, error) {
	return f(ctx, currency)
}

// PerUnit returns the per-unit price for a level. None resolves to the
// regular price, which is the only price fixed-fee routes quote.
// Custom requires a positive custom price.
func (q *Quote) PerUnit(level Level, custom *big.Int) *big.Int {
	switch level {
	case Low:
		if q.Low != nil {
			return q.Low
		}
		return q.Regular
	case Priority:
		if q.Priority != nil {
			return q.Priority
		}
		return q.Regular
	case Custom:
		assert.That("fee", custom != nil && custom.Sign() > 0, "custom fee level requires a positive price",
			"currency", q.Currency.Code)
		return custom
	default:
		return q.Regular
	}
}

// Total returns the fee for units at the given level, in the quote currency.
func (q *Quote) Total(level Level, units uint64, custom *big.Int) money.Value {
	price := q.PerUnit(level, custom)
	total := new(big.Int).Mul(price, new(big.Int).SetUint64(units))
	return money.NewFromMinor(total, q.Currency)
}

// TransferGas returns the gas units a transfer of currency consumes on an
// account chain. Token transfers use the contract limit.
func (q *Quote) TransferGas(currency money.Currency) uint64 {
	if currency.IsToken() {
		if q.GasLimitContract > 0 {
			return q.GasLimitContract
		}
		return GasLimitTokenTransfer
	}
	if q.GasLimit > 0 {
		return q.GasLimit
	}
	return GasLimitTransfer
}

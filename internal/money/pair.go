package money

import (
	"github.com/shopspring/decimal"
)

// Pair is an exchange rate: one unit of Base is worth Rate units of Quote.
// Pairs are for display only and never feed validation math.
type Pair struct {
	Base  Currency
	Quote Currency
	Rate  decimal.Decimal
}

// NewPair builds a rate from base to quote.
func NewPair(base, quote Currency, rate decimal.Decimal) Pair {
	return Pair{Base: base, Quote: quote, Rate: rate}
}

// Convert converts a Base amount into Quote.
func (p Pair) Convert(v Value) Value {
	v.mustMatch(Zero(p.Base), "convert")
	return New(v.amount.Mul(p.Rate), p.Quote)
}

// Inverse returns the quote → base rate. A zero rate inverts to zero.
func (p Pair) Inverse() Pair {
	if p.Rate.IsZero() {
		return Pair{Base: p.Quote, Quote: p.Base, Rate: decimal.Zero}
	}
	return Pair{Base: p.Quote, Quote: p.Base, Rate: decimal.NewFromInt(1).DivRound(p.Rate, 18)}
}

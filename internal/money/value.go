package money

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Value is an immutable amount of a single currency.
type Value struct {
	amount   decimal.Decimal
	currency Currency
}

// Zero returns a zero amount of the currency.
func Zero(c Currency) Value {
	return Value{amount: decimal.Zero, currency: c}
}

// New wraps a decimal major-unit amount.
func New(amount decimal.Decimal, c Currency) Value {
	return Value{amount: amount.Truncate(c.Decimals), currency: c}
}

// NewFromMajor parses a major-unit string such as "1.5".
// Digits beyond the currency precision are truncated.
func NewFromMajor(amount string, c Currency) (Value, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Value{}, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{
			"amount":   amount,
			"currency": c.Code,
		})
	}
	return New(d, c), nil
}

// MustMajor is NewFromMajor for constants and tests; it panics on malformed input.
func MustMajor(amount string, c Currency) Value {
	v, err := NewFromMajor(amount, c)
	if err != nil {
		panic(err)
	}
	return v
}

// NewFromMinor converts a minor-unit integer (wei, satoshi, stroop) into a Value.
func NewFromMinor(minor *big.Int, c Currency) Value {
	if minor == nil {
		return Zero(c)
	}
	return Value{amount: decimal.NewFromBigInt(minor, -c.Decimals), currency: c}
}

// NewFromMinorInt64 is NewFromMinor for int64 amounts.
func NewFromMinorInt64(minor int64, c Currency) Value {
	return Value{amount: decimal.New(minor, -c.Decimals), currency: c}
}

// Currency returns the value's currency.
func (v Value) Currency() Currency {
	return v.currency
}

// Decimal returns the major-unit amount.
func (v Value) Decimal() decimal.Decimal {
	return v.amount
}

// Minor returns the amount in minor units, truncating toward zero.
func (v Value) Minor() *big.Int {
	return v.amount.Shift(v.currency.Decimals).Truncate(0).BigInt()
}

// MinorInt64 returns the amount in minor units as int64.
func (v Value) MinorInt64() int64 {
	return v.amount.Shift(v.currency.Decimals).Truncate(0).IntPart()
}

// Add returns v + o.
func (v Value) Add(o Value) Value {
	v.mustMatch(o, "add")
	return Value{amount: v.amount.Add(o.amount), currency: v.currency}
}

// Sub returns v - o. The result may be negative.
func (v Value) Sub(o Value) Value {
	v.mustMatch(o, "subtract")
	return Value{amount: v.amount.Sub(o.amount), currency: v.currency}
}

// Mul scales v by a dimensionless factor.
func (v Value) Mul(factor decimal.Decimal) Value {
	return New(v.amount.Mul(factor), v.currency)
}

// Cmp compares v and o: -1 if v < o, 0 if equal, +1 if v > o.
func (v Value) Cmp(o Value) int {
	v.mustMatch(o, "compare")
	return v.amount.Cmp(o.amount)
}

// LessThan reports v < o.
func (v Value) LessThan(o Value) bool { return v.Cmp(o) < 0 }

// GreaterThan reports v > o.
func (v Value) GreaterThan(o Value) bool { return v.Cmp(o) > 0 }

// GreaterThanOrEqual reports v >= o.
func (v Value) GreaterThanOrEqual(o Value) bool { return v.Cmp(o) >= 0 }

// Equal reports whether both amount and currency match.
func (v Value) Equal(o Value) bool {
	return v.currency.Equal(o.currency) && v.amount.Equal(o.amount)
}

// IsZero reports whether the amount is zero.
func (v Value) IsZero() bool { return v.amount.IsZero() }

// IsPositive reports whether the amount is strictly positive.
func (v Value) IsPositive() bool { return v.amount.IsPositive() }

// IsNegative reports whether the amount is strictly negative.
func (v Value) IsNegative() bool { return v.amount.IsNegative() }

// ClampZero returns zero when v is negative.
func (v Value) ClampZero() Value {
	if v.amount.IsNegative() {
		return Zero(v.currency)
	}
	return v
}

// Max returns the larger of v and o.
func (v Value) Max(o Value) Value {
	if v.Cmp(o) >= 0 {
		return v
	}
	return o
}

// String renders the amount with the currency code, e.g. "1.498 ETH".
func (v Value) String() string {
	return v.amount.String() + " " + v.currency.Code
}

// DisplayString renders fiat with fixed precision and crypto without trailing zeros.
func (v Value) DisplayString() string {
	if v.currency.IsFiat() {
		return v.amount.StringFixedBank(v.currency.Decimals) + " " + v.currency.Code
	}
	return v.String()
}

// MarshalText renders the amount only, for JSON/YAML output.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.amount.String()), nil
}

func (v Value) mustMatch(o Value, op string) {
	if !v.currency.Equal(o.currency) {
		panic(fmt.Sprintf("money: cannot %s %s and %s", op, v.currency.Code, o.currency.Code))
	}
}

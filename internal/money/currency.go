// Package money provides currency-tagged decimal amounts.
//
// All arithmetic is decimal. Mixing currencies in a single operation is a
// programming error and panics.
package money

import (
	"strings"
)

// Kind separates on-chain assets from display-only fiat currencies.
type Kind string

// Currency kinds.
const (
	KindCrypto Kind = "crypto"
	KindFiat   Kind = "fiat"
)

// Currency describes an asset or fiat currency.
type Currency struct {
	Code     string // Ticker, e.g. "ETH"
	Name     string // Display name
	Decimals int32  // Minor-unit precision
	Kind     Kind
	Contract string // Token contract address, empty for native assets
	Parent   string // Code of the native asset that pays fees for a token
}

// IsToken reports whether the currency is a contract token on another chain.
func (c Currency) IsToken() bool {
	return c.Contract != ""
}

// IsFiat reports whether the currency is a display-only fiat currency.
func (c Currency) IsFiat() bool {
	return c.Kind == KindFiat
}

// Equal compares currencies by code.
func (c Currency) Equal(other Currency) bool {
	return strings.EqualFold(c.Code, other.Code)
}

func (c Currency) String() string {
	return c.Code
}

// Built-in currencies.
var (
	ETH = Currency{Code: "ETH", Name: "Ethereum", Decimals: 18, Kind: KindCrypto}
	// USDC is the ERC-20 stablecoin on Ethereum mainnet.
	USDC = Currency{
		Code:     "USDC",
		Name:     "USD Coin",
		Decimals: 6,
		Kind:     KindCrypto,
		Contract: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Parent:   "ETH",
	}
	BTC = Currency{Code: "BTC", Name: "Bitcoin", Decimals: 8, Kind: KindCrypto}
	XLM = Currency{Code: "XLM", Name: "Stellar Lumens", Decimals: 7, Kind: KindCrypto}

	USD = Currency{Code: "USD", Name: "US Dollar", Decimals: 2, Kind: KindFiat}
	EUR = Currency{Code: "EUR", Name: "Euro", Decimals: 2, Kind: KindFiat}
	GBP = Currency{Code: "GBP", Name: "British Pound", Decimals: 2, Kind: KindFiat}
)

// Fiat returns the fiat currency with the given code.
func Fiat(code string) (Currency, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "USD":
		return USD, true
	case "EUR":
		return EUR, true
	case "GBP":
		return GBP, true
	default:
		return Currency{}, false
	}
}

// Package chain provides chain identifiers, asset routes, and shared
// utilities (retry, rate limiting) for the per-chain packages.
package chain

import (
	"github.com/mrz1836/coincore/internal/money"
)

// ID represents a supported blockchain.
type ID string

// Supported blockchain identifiers.
const (
	ETH ID = "eth"
	BTC ID = "btc"
	XLM ID = "xlm"
)

// BIP44 coin types for derivation paths.
const (
	CoinTypeETH uint32 = 60
	CoinTypeBTC uint32 = 0
	CoinTypeXLM uint32 = 148
)

// DerivationPath returns the BIP44 account path prefix for a chain.
func (id ID) DerivationPath() string {
	switch id {
	case ETH:
		return "m/44'/60'/0'"
	case BTC:
		return "m/44'/0'/0'"
	case XLM:
		return "m/44'/148'/0'"
	default:
		return ""
	}
}

// CoinType returns the BIP44 coin type for a chain.
func (id ID) CoinType() uint32 {
	switch id {
	case ETH:
		return CoinTypeETH
	case BTC:
		return CoinTypeBTC
	case XLM:
		return CoinTypeXLM
	default:
		return 0
	}
}

// String returns the chain identifier string.
func (id ID) String() string {
	return string(id)
}

// IsValid returns true if the chain ID is a known chain.
func (id ID) IsValid() bool {
	switch id {
	case ETH, BTC, XLM:
		return true
	default:
		return false
	}
}

// Route returns the ledger model of the chain.
func (id ID) Route() Route {
	switch id {
	case ETH:
		return RouteAccount
	case BTC:
		return RouteUTXO
	case XLM:
		return RouteLedgerSequence
	default:
		return RouteUnknown
	}
}

// DustLimit returns the minimum output value in satoshis for UTXO chains.
// Account and ledger-sequence chains have no dust rule and return 0.
func (id ID) DustLimit() int64 {
	if id == BTC {
		return 546
	}
	return 0
}

// ParseChainID parses a string into a chain ID.
func ParseChainID(s string) (ID, bool) {
	id := ID(s)
	return id, id.IsValid()
}

// AllChains returns all supported chain IDs.
func AllChains() []ID {
	return []ID{ETH, BTC, XLM}
}

// Route is the ledger model an asset settles on. Engines specialize per route.
type Route int

// Asset routes.
const (
	RouteUnknown Route = iota
	// RouteAccount is an account/nonce chain priced as gas price × gas limit.
	RouteAccount
	// RouteUTXO is an unspent-output chain priced per virtual byte.
	RouteUTXO
	// RouteLedgerSequence is a sequence-numbered ledger with a base reserve and fixed base fee.
	RouteLedgerSequence
)

func (r Route) String() string {
	switch r {
	case RouteAccount:
		return "account"
	case RouteUTXO:
		return "utxo"
	case RouteLedgerSequence:
		return "ledger-sequence"
	default:
		return "unknown"
	}
}

// Asset binds a currency to the chain that settles it.
type Asset struct {
	Currency money.Currency
	Chain    ID
}

// Route returns the route of the settling chain.
func (a Asset) Route() Route {
	return a.Chain.Route()
}

// FeeCurrency returns the currency network fees are paid in.
// Tokens pay fees in their parent asset.
func (a Asset) FeeCurrency() money.Currency {
	if a.Currency.IsToken() {
		if parent, ok := registry[a.Currency.Parent]; ok {
			return parent.Currency
		}
	}
	return a.Currency
}

func (a Asset) String() string {
	return a.Currency.Code
}

// Package account describes the source accounts a transfer can be sent from.
package account

import (
	"strings"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Type separates locally keyed accounts from balances held by the trading backend.
type Type int

// Account types.
const (
	NonCustodial Type = iota
	Trading
)

// String returns the account type name.
func (t Type) String() string {
	switch t {
	case NonCustodial:
		return "non-custodial"
	case Trading:
		return "trading"
	default:
		return "unknown"
	}
}

// ParseType parses an account type name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "non-custodial", "noncustodial", "wallet":
		return NonCustodial, nil
	case "trading", "custodial":
		return Trading, nil
	default:
		return NonCustodial, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{
			"account_type": s,
			"allowed":      "non-custodial, trading",
		})
	}
}

// Account is a source of funds.
type Account struct {
	ID    string
	Label string
	Asset chain.Asset
	Type  Type
	// Address is the on-chain address of a non-custodial account.
	Address string
}

// Currency returns the account's currency.
func (a Account) Currency() money.Currency {
	return a.Asset.Currency
}

// IsCustodial reports whether the account is held by the trading backend.
func (a Account) IsCustodial() bool {
	return a.Type == Trading
}

// DisplayName returns the label, falling back to the id.
func (a Account) DisplayName() string {
	if a.Label != "" {
		return a.Label
	}
	return a.ID
}

// Validate checks the fields engines rely on.
func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"field": "account.id"})
	}
	if !a.Asset.Chain.IsValid() {
		return coreerr.WithDetails(chain.ErrUnsupportedAsset, map[string]string{"asset": a.Asset.Currency.Code})
	}
	if a.Type == NonCustodial && strings.TrimSpace(a.Address) == "" {
		return coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{
			"field":   "account.address",
			"account": a.ID,
		})
	}
	return nil
}

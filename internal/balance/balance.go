// Package balance defines the balance and reserve contracts engines consume,
// the exclusive pending-operation lock registry, and a balance cache.
package balance

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/money"
)

// Provider exposes the spendable balance of an account and whether a prior
// operation is still unconfirmed.
type Provider interface {
	// SpendableBalance returns the withdrawable balance in the account currency.
	SpendableBalance(ctx context.Context, acct account.Account) (money.Value, error)
	// HasPendingOperation reports an in-flight operation that forbids a new send.
	HasPendingOperation(ctx context.Context, acct account.Account) (bool, error)
}

// FeeBalance is implemented by providers of token accounts whose network fee
// is paid from a parent-asset balance (ERC-20 gas is paid in ETH).
type FeeBalance interface {
	FeeBalance(ctx context.Context, acct account.Account) (money.Value, error)
}

// Reserve describes a ledger account's minimum-balance constraint.
type Reserve struct {
	// Funded is false when the account does not exist on the ledger yet.
	Funded      bool
	BaseReserve money.Value
	Subentries  int
}

// Minimum returns the balance the account must keep: (2 + subentries) × base reserve.
func (r Reserve) Minimum() money.Value {
	return r.BaseReserve.Mul(decimal.NewFromInt(int64(2 + r.Subentries)))
}

// CreateAccountMinimum returns the smallest payment that creates an unfunded account.
func (r Reserve) CreateAccountMinimum() money.Value {
	return r.BaseReserve.Mul(decimal.NewFromInt(2))
}

// ReserveProvider looks up reserves on ledger-sequence chains.
type ReserveProvider interface {
	AccountReserve(ctx context.Context, address string) (Reserve, error)
}

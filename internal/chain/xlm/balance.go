package xlm

import (
	"context"
	"errors"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// BalanceProvider reads native balances and reserve parameters from Horizon.
type BalanceProvider struct {
	client *Client
}

// NewBalanceProvider creates a provider over client.
func NewBalanceProvider(client *Client) *BalanceProvider {
	return &BalanceProvider{client: client}
}

// SpendableBalance returns the native balance before reserves. An unfunded
// account has a zero balance.
func (p *BalanceProvider) SpendableBalance(ctx context.Context, acct account.Account) (money.Value, error) {
	resp, err := p.client.Account(ctx, acct.Address)
	if errors.Is(err, coreerr.ErrNotFound) {
		return money.Zero(money.XLM), nil
	}
	if err != nil {
		return money.Value{}, err
	}
	return money.NewFromMajor(resp.NativeBalance(), money.XLM)
}

// HasPendingOperation is always false: sequence numbers are taken at build time.
func (p *BalanceProvider) HasPendingOperation(context.Context, account.Account) (bool, error) {
	return false, nil
}

// AccountReserve implements balance.ReserveProvider from the latest ledger's
// base reserve and the account's subentry count.
func (p *BalanceProvider) AccountReserve(ctx context.Context, address string) (balance.Reserve, error) {
	ledger, err := p.client.LatestLedger(ctx)
	if err != nil {
		return balance.Reserve{}, err
	}
	res := balance.Reserve{BaseReserve: money.NewFromMinorInt64(ledger.BaseReserveInStroops, money.XLM)}

	resp, err := p.client.Account(ctx, address)
	if errors.Is(err, coreerr.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return balance.Reserve{}, err
	}
	res.Funded = true
	res.Subentries = resp.SubentryCount
	return res, nil
}

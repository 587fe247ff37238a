package custodial

import (
	"context"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/money"
)

// BalanceProvider reports trading account balances. Trading accounts never
// have an operation that blocks a new send.
type BalanceProvider struct {
	client *Client
}

// NewBalanceProvider creates a provider backed by client.
func NewBalanceProvider(client *Client) *BalanceProvider {
	return &BalanceProvider{client: client}
}

// SpendableBalance implements balance.Provider.
func (p *BalanceProvider) SpendableBalance(ctx context.Context, acct account.Account) (money.Value, error) {
	return p.client.WithdrawableBalance(ctx, acct.Currency())
}

// HasPendingOperation implements balance.Provider.
func (p *BalanceProvider) HasPendingOperation(context.Context, account.Account) (bool, error) {
	return false, nil
}

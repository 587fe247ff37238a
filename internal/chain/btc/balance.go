package btc

import (
	"context"
	"errors"
	"math/big"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// BalanceProvider derives balances and transaction sizes from the address's UTXO set.
type BalanceProvider struct {
	client *Client
}

// NewBalanceProvider creates a provider over client.
func NewBalanceProvider(client *Client) *BalanceProvider {
	return &BalanceProvider{client: client}
}

// SpendableBalance sums every UTXO, including unconfirmed change.
func (p *BalanceProvider) SpendableBalance(ctx context.Context, acct account.Account) (money.Value, error) {
	utxos, err := p.client.UTXOs(ctx, acct.Address)
	if err != nil {
		return money.Value{}, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return money.NewFromMinor(new(big.Int).SetUint64(total), money.BTC), nil
}

// HasPendingOperation reports an unconfirmed transaction spending from the address.
func (p *BalanceProvider) HasPendingOperation(ctx context.Context, acct account.Account) (bool, error) {
	txs, err := p.client.Mempool(ctx, acct.Address)
	if err != nil {
		return false, err
	}
	for _, tx := range txs {
		if tx.Spends(acct.Address) {
			return true, nil
		}
	}
	return false, nil
}

// TransferUnits returns the estimated vsize of a payment of amount at feeRate sat/vB.
// When the UTXO set cannot cover it, the size of spending every input is returned
// and the shortfall is left to balance validation.
func (p *BalanceProvider) TransferUnits(ctx context.Context, acct account.Account, amount money.Value, feeRate *big.Int) (uint64, error) {
	utxos, err := p.client.UTXOs(ctx, acct.Address)
	if err != nil {
		return 0, err
	}

	sel, err := SelectUTXOs(utxos, minorUint64(amount), feeRate.Uint64())
	if errors.Is(err, coreerr.ErrInsufficientFunds) {
		return EstimateTxSize(max(1, len(utxos)), 2), nil
	}
	if err != nil {
		return 0, err
	}

	outputs := 1
	if sel.Change > 0 {
		outputs = 2
	}
	return EstimateTxSize(len(sel.Inputs), outputs), nil
}

// SweepUnits returns the estimated vsize of spending every UTXO to one output.
func (p *BalanceProvider) SweepUnits(ctx context.Context, acct account.Account) (uint64, error) {
	utxos, err := p.client.UTXOs(ctx, acct.Address)
	if err != nil {
		return 0, err
	}
	return EstimateTxSize(max(1, len(utxos)), 1), nil
}

func minorUint64(v money.Value) uint64 {
	m := v.Minor()
	if m.Sign() <= 0 {
		return 0
	}
	return m.Uint64()
}

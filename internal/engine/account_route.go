package engine

import (
	"context"

	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

var accountLevels = fee.NewSet(fee.Regular, fee.Priority, fee.Custom)

// AccountEngine sends on account-model chains. Fees are gas priced per unit;
// token transfers pay gas in the parent asset. One outstanding transaction
// per source account is allowed at a time.
type AccountEngine struct {
	*onChain
}

// FeeLevels implements FeeLevelCapable.
func (e *AccountEngine) FeeLevels() fee.Set { return e.levels }

func (e *AccountEngine) refresh(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	// The lock is best-effort here; rules reports a conflict.
	e.acquire(tx)

	quote, err := e.feeQuote(ctx)
	if err != nil {
		return tx, err
	}
	bal, err := e.spendable(ctx)
	if err != nil {
		return tx, err
	}

	cur := tx.Currency()
	sel := tx.FeeSelection
	networkFee := quote.Total(sel.Selected, quote.TransferGas(cur), sel.Custom)

	if cur.IsToken() {
		zero := money.Zero(cur)
		tx = tx.WithBalance(bal, zero, zero, networkFee)
	} else {
		tx = tx.WithBalance(bal.Sub(networkFee).ClampZero(), networkFee, networkFee, networkFee)
	}
	tx = tx.WithMinimumLimit(money.Zero(cur))
	tx.CheckCurrencies()
	return tx, nil
}

func (e *AccountEngine) amountState(tx pending.Transaction) pending.ValidationState {
	return standardAmountState(tx)
}

func (e *AccountEngine) rules(ctx context.Context, tx pending.Transaction) (pending.ValidationState, error) {
	if !e.acquire(tx) {
		return pending.PendingTransaction, nil
	}
	busy, err := e.cfg.Balances.HasPendingOperation(ctx, e.source)
	if err != nil {
		return pending.Uninitialized, coreerr.Wrap(err, "checking pending transactions of %s", e.source.DisplayName())
	}
	if busy {
		return pending.PendingTransaction, nil
	}

	if tx.Currency().IsToken() {
		fb, ok := e.cfg.Balances.(balance.FeeBalance)
		if !ok {
			return pending.Uninitialized, coreerr.Wrap(coreerr.ErrNotSupported, "gas balance of %s", e.source.DisplayName())
		}
		gas, err := fb.FeeBalance(ctx, e.source)
		if err != nil {
			return pending.Uninitialized, coreerr.Wrap(err, "fetching gas balance of %s", e.source.DisplayName())
		}
		if gas.LessThan(tx.NetworkFee) {
			return pending.InsufficientGas, nil
		}
	}
	return pending.CanExecute, nil
}

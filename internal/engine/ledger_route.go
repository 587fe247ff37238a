package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

var ledgerLevels = fee.NewSet(fee.None)

// LedgerEngine sends on ledger-sequence chains. The fee is a flat base fee
// per operation. The source keeps its reserve, and a payment to an unfunded
// destination must be large enough to create it.
type LedgerEngine struct {
	*onChain

	// Reserves are read once per engine and again on a fresh read.
	sourceReserve *balance.Reserve
	destReserve   *balance.Reserve
}

// AssertInputsValid implements Engine.
func (e *LedgerEngine) AssertInputsValid() {
	e.onChain.AssertInputsValid()
	assert.NotNil("engine."+e.route, e.cfg.Reserves, "reserve provider is required")
}

// UpdateMemo implements MemoCapable.
func (e *LedgerEngine) UpdateMemo(tx pending.Transaction, memo string) (pending.Transaction, error) {
	return e.updateMemo(tx, memo)
}

// Reserve implements ReserveCapable for the source account.
func (e *LedgerEngine) Reserve(ctx context.Context) (balance.Reserve, error) {
	r, err := e.reserve(ctx, e.source.Address, &e.sourceReserve)
	if err != nil {
		return balance.Reserve{}, coreerr.Wrap(err, "fetching reserve of %s", e.source.DisplayName())
	}
	return r, nil
}

func (e *LedgerEngine) reserve(ctx context.Context, address string, slot **balance.Reserve) (balance.Reserve, error) {
	e.mu.Lock()
	cached := *slot
	e.mu.Unlock()
	if cached != nil && !balance.IsFreshRead(ctx) {
		return *cached, nil
	}

	r, err := e.cfg.Reserves.AccountReserve(ctx, address)
	if err != nil {
		return balance.Reserve{}, err
	}
	e.mu.Lock()
	*slot = &r
	e.mu.Unlock()
	return r, nil
}

func (e *LedgerEngine) refresh(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	dest, err := e.destination(ctx)
	if err != nil {
		return tx, err
	}

	var (
		quote                *fee.Quote
		bal                  money.Value
		reserve, destReserve balance.Reserve
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		quote, err = e.feeQuote(gctx)
		return err
	})
	g.Go(func() (err error) {
		bal, err = e.spendable(gctx)
		return err
	})
	g.Go(func() (err error) {
		reserve, err = e.Reserve(gctx)
		return err
	})
	g.Go(func() error {
		r, err := e.reserve(gctx, dest.Address, &e.destReserve)
		if err != nil {
			return coreerr.Wrap(err, "fetching destination reserve")
		}
		destReserve = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return tx, err
	}

	e.mu.Lock()
	e.createAccount = !destReserve.Funded
	e.mu.Unlock()

	cur := tx.Currency()
	// One payment operation.
	networkFee := quote.Total(tx.FeeSelection.Selected, 1, tx.FeeSelection.Custom)
	available := bal.Sub(reserve.Minimum()).Sub(networkFee).ClampZero()

	minimum := money.NewFromMinorInt64(1, cur)
	if !destReserve.Funded {
		minimum = destReserve.CreateAccountMinimum()
	}

	tx = tx.WithBalance(available, networkFee, networkFee, networkFee).WithMinimumLimit(minimum)
	tx.CheckCurrencies()
	return tx, nil
}

// amountState checks the minimum before the balance so that a payment too
// small to create the destination reports that reason even when unfunded.
func (e *LedgerEngine) amountState(tx pending.Transaction) pending.ValidationState {
	e.mu.Lock()
	createAccount := e.createAccount
	e.mu.Unlock()

	switch {
	case !tx.Amount.IsPositive():
		return pending.InvalidAmount
	case tx.Amount.LessThan(tx.MinimumLimit) && createAccount:
		return pending.InsufficientFundsForNewAccount
	case tx.Amount.LessThan(tx.MinimumLimit):
		return pending.BelowMinimumLimit
	case tx.Amount.GreaterThan(tx.Available):
		return pending.InsufficientFunds
	default:
		return pending.CanExecute
	}
}

func (e *LedgerEngine) rules(context.Context, pending.Transaction) (pending.ValidationState, error) {
	return pending.CanExecute, nil
}

package engine

import (
	"context"
	"math/big"

	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

var utxoLevels = fee.NewSet(fee.Regular, fee.Priority, fee.Custom)

// baselineVSize is the size of a one-input, two-output P2PKH payment, used
// when no UTXO-aware estimator is configured.
const baselineVSize = 226

// UTXOEngine sends on UTXO chains. Fees are priced per virtual byte of the
// transaction that would be built for the entered amount.
type UTXOEngine struct {
	*onChain
}

// FeeLevels implements FeeLevelCapable.
func (e *UTXOEngine) FeeLevels() fee.Set { return e.levels }

func (e *UTXOEngine) refresh(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	quote, err := e.feeQuote(ctx)
	if err != nil {
		return tx, err
	}
	bal, err := e.spendable(ctx)
	if err != nil {
		return tx, err
	}

	sel := tx.FeeSelection
	rate := quote.PerUnit(sel.Selected, sel.Custom)
	units, sweepUnits := uint64(baselineVSize), uint64(baselineVSize)
	if e.cfg.Units != nil {
		if units, err = e.cfg.Units.TransferUnits(ctx, e.source, tx.Amount, rate); err != nil {
			return tx, coreerr.Wrap(err, "sizing %s transfer", e.asset)
		}
		if sweepUnits, err = e.cfg.Units.SweepUnits(ctx, e.source); err != nil {
			return tx, coreerr.Wrap(err, "sizing %s sweep", e.asset)
		}
	}

	cur := tx.Currency()
	feeAmount := money.NewFromMinor(new(big.Int).Mul(rate, new(big.Int).SetUint64(units)), cur)
	feeForFull := money.NewFromMinor(new(big.Int).Mul(rate, new(big.Int).SetUint64(sweepUnits)), cur)
	available := bal.Sub(feeForFull).ClampZero()

	tx = tx.WithBalance(available, feeAmount, feeForFull, feeAmount).
		WithMinimumLimit(money.NewFromMinorInt64(e.asset.Chain.DustLimit(), cur))
	tx.CheckCurrencies()
	return tx, nil
}

func (e *UTXOEngine) amountState(tx pending.Transaction) pending.ValidationState {
	return standardAmountState(tx)
}

// rules has nothing beyond the amount checks: unconfirmed change can be spent.
func (e *UTXOEngine) rules(context.Context, pending.Transaction) (pending.ValidationState, error) {
	return pending.CanExecute, nil
}

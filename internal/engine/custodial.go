package engine

import (
	"context"
	"sync"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/custodial"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	"github.com/mrz1836/coincore/internal/signing"
	"github.com/mrz1836/coincore/internal/target"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

var custodialLevels = fee.NewSet(fee.None)

// NonCustodialToTradingEngine deposits from a non-custodial account into a
// trading account. It opens a FROM_USERKEY order, pays the order's deposit
// address on chain and reports the outcome back to the order.
type NonCustodialToTradingEngine struct {
	leg
	orders OrderBackend
	logger LogWriter
}

// NewNonCustodialToTrading creates the deposit engine. Until an order exists,
// fees and reserves are estimated against the trading account's receive address.
func NewNonCustodialToTrading(src account.Account, tgt target.Target, cfg Config) *NonCustodialToTradingEngine {
	e := &NonCustodialToTradingEngine{orders: cfg.Orders, logger: cfg.Logger}
	e.leg = newLeg(src, tgt, cfg, e.receiveAddress)
	return e
}

func (e *NonCustodialToTradingEngine) receiveAddress(ctx context.Context) (target.Destination, error) {
	addr, memo, err := e.orders.ReceiveAddress(ctx, e.Source().Currency())
	if err != nil {
		return target.Destination{}, coreerr.Wrap(err, "fetching trading deposit address")
	}
	return target.Destination{Address: addr, Memo: memo}, nil
}

// Route implements Engine.
func (e *NonCustodialToTradingEngine) Route() string { return "noncustodial-to-trading" }

// AssertInputsValid implements Engine.
func (e *NonCustodialToTradingEngine) AssertInputsValid() {
	e.leg.AssertInputsValid()
	component := "engine." + e.Route()
	assert.That(component, e.Target().Kind() == target.KindCustodial, "target must be a trading account",
		"target", e.Target().Label())
	assert.NotNil(component, e.orders, "order backend is required")
}

// Execute implements Engine. The key is unlocked before the order is created
// so a wrong second password never leaves an orphaned order.
func (e *NonCustodialToTradingEngine) Execute(ctx context.Context, tx pending.Transaction, secondPassword string) (Result, error) {
	if err := checkExecutable(tx); err != nil {
		return Result{}, err
	}
	defer e.Close(tx)

	tx, err := e.revalidate(balance.WithFreshRead(ctx), tx)
	if err != nil {
		return Result{}, err
	}

	kp, err := e.unlock(ctx, secondPassword)
	if signing.IsCancelled(err) {
		return cancelled(tx.Amount), nil
	}
	if err != nil {
		return Result{}, err
	}

	src := e.Source()
	quote, err := e.orders.FetchQuote(ctx, custodial.FromUserKey, tx.Amount, src.Currency())
	if err != nil {
		kp.Zero()
		if ctx.Err() != nil {
			return cancelled(tx.Amount), nil
		}
		return Result{}, err
	}

	commit, ok := commitContext(ctx)
	if !ok {
		kp.Zero()
		return cancelled(tx.Amount), nil
	}
	order, err := e.orders.CreateOrder(commit, custodial.OrderRequest{
		Direction:     custodial.FromUserKey,
		QuoteID:       quote.ID,
		Volume:        tx.Amount,
		RefundAddress: src.Address,
	})
	if err != nil {
		kp.Zero()
		return Result{}, err
	}

	dest := target.Destination{Address: order.DepositAddress, Memo: order.DepositMemo}
	pub, sendErr := e.sendWith(commit, tx, dest, kp)
	if err := e.orders.UpdateOrder(commit, order.ID, sendErr == nil); err != nil {
		if e.logger != nil {
			e.logger.Error("updating order %s: %v", order.ID, err)
		}
	}
	if sendErr != nil {
		return Result{}, coreerr.Wrap(sendErr, "paying deposit of order %s", order.ID)
	}
	return Result{Kind: Hashed, TxHash: pub.Hash, Amount: tx.Amount, OrderID: order.ID}, nil
}

// TradingToNonCustodialEngine withdraws from a trading account to an
// on-chain address. The backend charges a flat withdrawal fee and enforces
// a minimum amount.
type TradingToNonCustodialEngine struct {
	*base
	withdrawals WithdrawalBackend

	feesMu sync.Mutex
	fees   *custodial.WithdrawalFees
}

// NewTradingToNonCustodial creates the withdrawal engine.
func NewTradingToNonCustodial(src account.Account, tgt target.Target, cfg Config) *TradingToNonCustodialEngine {
	e := &TradingToNonCustodialEngine{
		base:        newBase("trading-to-noncustodial", src, tgt, cfg, src.Currency(), fee.None, custodialLevels),
		withdrawals: cfg.Withdrawals,
	}
	e.hooks = e
	return e
}

// AssertInputsValid implements Engine.
func (e *TradingToNonCustodialEngine) AssertInputsValid() {
	e.assertCommon()
	component := "engine." + e.route
	assert.That(component, e.source.IsCustodial(), "source must be a trading account", "account", e.source.ID)
	assert.That(component, e.target.AccountType() == account.NonCustodial, "target must be non-custodial",
		"target", e.target.Label())
	assert.That(component, e.target.Kind() != target.KindBitPayInvoice, "invoices are paid from non-custodial accounts")
	assert.NotNil(component, e.withdrawals, "withdrawal backend is required")
}

// RequiresSecondPassword implements Engine. The backend holds the keys.
func (e *TradingToNonCustodialEngine) RequiresSecondPassword() bool { return false }

// UpdateMemo implements MemoCapable.
func (e *TradingToNonCustodialEngine) UpdateMemo(tx pending.Transaction, memo string) (pending.Transaction, error) {
	return e.updateMemo(tx, memo)
}

func (e *TradingToNonCustodialEngine) withdrawalFees(ctx context.Context) (custodial.WithdrawalFees, error) {
	e.feesMu.Lock()
	defer e.feesMu.Unlock()
	if e.fees != nil {
		return *e.fees, nil
	}
	f, err := e.withdrawals.WithdrawalFees(ctx, e.source.Currency())
	if err != nil {
		return custodial.WithdrawalFees{}, coreerr.Wrap(err, "fetching %s withdrawal fees", e.source.Currency().Code)
	}
	e.fees = &f
	return f, nil
}

func (e *TradingToNonCustodialEngine) refresh(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	fees, err := e.withdrawalFees(ctx)
	if err != nil {
		return tx, err
	}
	bal, err := e.spendable(ctx)
	if err != nil {
		return tx, err
	}
	tx = tx.WithBalance(bal.Sub(fees.Fee).ClampZero(), fees.Fee, fees.Fee, fees.Fee).WithMinimumLimit(fees.Minimum)
	tx.CheckCurrencies()
	return tx, nil
}

func (e *TradingToNonCustodialEngine) amountState(tx pending.Transaction) pending.ValidationState {
	return standardAmountState(tx)
}

func (e *TradingToNonCustodialEngine) rules(context.Context, pending.Transaction) (pending.ValidationState, error) {
	return pending.CanExecute, nil
}

// Execute implements Engine. The withdrawal id is reported as the hash.
func (e *TradingToNonCustodialEngine) Execute(ctx context.Context, tx pending.Transaction, _ string) (Result, error) {
	if err := checkExecutable(tx); err != nil {
		return Result{}, err
	}
	tx, err := e.revalidate(balance.WithFreshRead(ctx), tx)
	if err != nil {
		return Result{}, err
	}
	dest, err := e.destination(ctx)
	if err != nil {
		return Result{}, err
	}
	memo := tx.Memo
	if memo == "" {
		memo = dest.Memo
	}

	commit, ok := commitContext(ctx)
	if !ok {
		return cancelled(tx.Amount), nil
	}
	w, err := e.withdrawals.Transfer(commit, tx.Amount, dest.Address, memo)
	if err != nil {
		return Result{}, err
	}
	e.debug("withdrew %s to %s: %s", tx.Amount, dest.Address, w.ID)
	return Result{Kind: Hashed, TxHash: w.ID, Amount: tx.Amount}, nil
}

// TradingToTradingEngine moves funds between trading accounts with an
// INTERNAL order. No network fee is charged.
type TradingToTradingEngine struct {
	*base
	orders OrderBackend
}

// NewTradingToTrading creates the internal transfer engine.
func NewTradingToTrading(src account.Account, tgt target.Target, cfg Config) *TradingToTradingEngine {
	e := &TradingToTradingEngine{
		base:   newBase("trading-to-trading", src, tgt, cfg, src.Currency(), fee.None, custodialLevels),
		orders: cfg.Orders,
	}
	e.hooks = e
	return e
}

// AssertInputsValid implements Engine.
func (e *TradingToTradingEngine) AssertInputsValid() {
	e.assertCommon()
	component := "engine." + e.route
	assert.That(component, e.source.IsCustodial(), "source must be a trading account", "account", e.source.ID)
	assert.That(component, e.target.Kind() == target.KindCustodial, "target must be a trading account",
		"target", e.target.Label())
	assert.NotNil(component, e.orders, "order backend is required")
}

// RequiresSecondPassword implements Engine.
func (e *TradingToTradingEngine) RequiresSecondPassword() bool { return false }

func (e *TradingToTradingEngine) refresh(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	bal, err := e.spendable(ctx)
	if err != nil {
		return tx, err
	}
	zero := money.Zero(tx.Currency())
	return tx.WithBalance(bal, zero, zero, zero).WithMinimumLimit(zero), nil
}

func (e *TradingToTradingEngine) amountState(tx pending.Transaction) pending.ValidationState {
	return standardAmountState(tx)
}

func (e *TradingToTradingEngine) rules(context.Context, pending.Transaction) (pending.ValidationState, error) {
	return pending.CanExecute, nil
}

// Execute implements Engine. The order id is reported as the hash.
func (e *TradingToTradingEngine) Execute(ctx context.Context, tx pending.Transaction, _ string) (Result, error) {
	if err := checkExecutable(tx); err != nil {
		return Result{}, err
	}
	tx, err := e.revalidate(balance.WithFreshRead(ctx), tx)
	if err != nil {
		return Result{}, err
	}

	quote, err := e.orders.FetchQuote(ctx, custodial.Internal, tx.Amount, e.target.Currency())
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(tx.Amount), nil
		}
		return Result{}, err
	}
	commit, ok := commitContext(ctx)
	if !ok {
		return cancelled(tx.Amount), nil
	}
	order, err := e.orders.CreateOrder(commit, custodial.OrderRequest{
		Direction: custodial.Internal,
		QuoteID:   quote.ID,
		Volume:    tx.Amount,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: Hashed, TxHash: order.ID, Amount: tx.Amount, OrderID: order.ID}, nil
}

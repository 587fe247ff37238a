// Package engine drives one transfer attempt from a zero-amount pending
// transaction through amount entry, confirmations and validation to a
// signed broadcast or a custodial order.
//
// One engine exists per route: on-chain sends between non-custodial accounts
// (specialized per ledger model), deposits into a trading account,
// withdrawals from a trading account, and transfers between trading
// accounts. Engines are not safe for concurrent mutation of the same pending
// transaction; Session serializes access and adds the last-write-wins and
// at-most-one-execute guarantees.
package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/custodial"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/metrics"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	"github.com/mrz1836/coincore/internal/signing"
	"github.com/mrz1836/coincore/internal/target"
)

// Engine drives one pending transaction on one route.
type Engine interface {
	Source() account.Account
	Target() target.Target
	// Route names the engine for logs and metrics.
	Route() string

	// AssertInputsValid panics when the source and target cannot be served by
	// this engine. A failure is a routing bug, not a user error.
	AssertInputsValid()
	// RequiresSecondPassword reports whether Execute needs a second password.
	RequiresSecondPassword() bool

	// InitializeTransaction returns a zero-amount transaction in the source currency.
	InitializeTransaction(ctx context.Context) (pending.Transaction, error)
	// Update sets the amount and recomputes available balance and fees. On a
	// failed fetch the new amount is kept with the previous available balance
	// and the error is returned alongside.
	Update(ctx context.Context, amount money.Value, tx pending.Transaction) (pending.Transaction, error)
	// UpdateFeeLevel selects a fee level. A level the route does not offer panics.
	UpdateFeeLevel(ctx context.Context, tx pending.Transaction, level fee.Level, custom *big.Int) (pending.Transaction, error)
	// BuildConfirmations fills the summary lines shown before execution.
	BuildConfirmations(ctx context.Context, tx pending.Transaction) (pending.Transaction, error)
	// ValidateAmount runs the amount checks: positive, within available, above minimum.
	ValidateAmount(ctx context.Context, tx pending.Transaction) (pending.Transaction, error)
	// ValidateAll runs the amount checks followed by the route rules.
	ValidateAll(ctx context.Context, tx pending.Transaction) (pending.Transaction, error)
	// Execute re-validates against fresh balances and commits the transfer.
	// A cancelled second password or a context cancelled before the commit
	// returns a Cancelled result and a nil error.
	Execute(ctx context.Context, tx pending.Transaction, secondPassword string) (Result, error)
	// PostExecute does best-effort bookkeeping after a successful Execute.
	PostExecute(ctx context.Context, result Result) error
	// Close releases resources held for the transaction, such as account locks.
	Close(tx pending.Transaction)
}

// FeeLevelCapable is implemented by engines whose route offers a choice of fee levels.
type FeeLevelCapable interface {
	FeeLevels() fee.Set
}

// MemoCapable is implemented by engines whose route carries a memo.
type MemoCapable interface {
	UpdateMemo(tx pending.Transaction, memo string) (pending.Transaction, error)
}

// ReserveCapable is implemented by engines whose ledger enforces a base reserve.
type ReserveCapable interface {
	Reserve(ctx context.Context) (balance.Reserve, error)
}

// ResultKind separates broadcast results from silent cancellations.
type ResultKind int

// Result kinds.
const (
	Hashed ResultKind = iota
	Cancelled
)

// String returns the kind name.
func (k ResultKind) String() string {
	if k == Cancelled {
		return "cancelled"
	}
	return "hashed"
}

// Result is the terminal outcome of Execute.
type Result struct {
	Kind ResultKind
	// TxHash is the transaction hash, or the backend id for custodial transfers.
	TxHash  string
	Amount  money.Value
	OrderID string
}

// Hashed reports a committed transfer.
func (r Result) Hashed() bool {
	return r.Kind == Hashed && r.TxHash != ""
}

func cancelled(amount money.Value) Result {
	return Result{Kind: Cancelled, Amount: amount}
}

// LogWriter is the logging interface used by engines and sessions.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// RateSource prices one unit of base in quote for display.
type RateSource interface {
	Rate(ctx context.Context, base, quote money.Currency) (money.Pair, error)
}

// UnitEstimator sizes UTXO transfers in virtual bytes.
type UnitEstimator interface {
	TransferUnits(ctx context.Context, acct account.Account, amount money.Value, feeRate *big.Int) (uint64, error)
	SweepUnits(ctx context.Context, acct account.Account) (uint64, error)
}

// OrderBackend creates and settles trading orders.
type OrderBackend interface {
	FetchQuote(ctx context.Context, direction custodial.Direction, volume money.Value, output money.Currency) (*custodial.Quote, error)
	CreateOrder(ctx context.Context, req custodial.OrderRequest) (*custodial.Order, error)
	UpdateOrder(ctx context.Context, id string, success bool) error
	ReceiveAddress(ctx context.Context, currency money.Currency) (address, memo string, err error)
}

// WithdrawalBackend moves funds out of a trading account.
type WithdrawalBackend interface {
	WithdrawalFees(ctx context.Context, currency money.Currency) (custodial.WithdrawalFees, error)
	Transfer(ctx context.Context, amount money.Value, destination, memo string) (*custodial.Withdrawal, error)
}

// DirtyMarker invalidates cached state of an account after a transfer.
type DirtyMarker interface {
	MarkDirty(acct account.Account)
}

// InvoiceBroadcasters returns the broadcaster that pays an invoice.
type InvoiceBroadcasters func(invoiceID string, currency money.Currency) signing.Broadcaster

// Config holds the collaborators of an engine. Route engines use the subset
// their route needs; AssertInputsValid checks the required ones.
type Config struct {
	Balances  balance.Provider
	Fees      fee.Source
	Reserves  balance.ReserveProvider
	Units     UnitEstimator
	Rates     RateSource
	Locks     *balance.Locks
	Resolvers target.Resolvers
	Pipeline  signing.Pipeline
	Keys      signing.KeyPairProvider
	Invoices  InvoiceBroadcasters

	Orders      OrderBackend
	Withdrawals WithdrawalBackend

	Dirty DirtyMarker
	// Persist saves local caches after PostExecute.
	Persist func() error

	// Fiat is the display currency of confirmation lines.
	Fiat    money.Currency
	Logger  LogWriter
	Metrics *metrics.Metrics
	Now     func() time.Time
}

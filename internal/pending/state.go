package pending

import (
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Phase is the lifecycle position of a pending transaction.
type Phase int

// Phases in lifecycle order.
const (
	Created Phase = iota
	Initialized
	AmountEntered
	ConfirmationsBuilt
	Validated
	Executing
	Completed
	Failed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Created:
		return "created"
	case Initialized:
		return "initialized"
	case AmountEntered:
		return "amount-entered"
	case ConfirmationsBuilt:
		return "confirmations-built"
	case Validated:
		return "validated"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == Completed || p == Failed
}

// Editable reports whether amount and fee updates are accepted.
func (p Phase) Editable() bool {
	return p >= Initialized && p < Executing
}

// ValidationState is the outcome of the last validation.
type ValidationState int

// Validation outcomes. Everything except Uninitialized and CanExecute is a
// user-facing failure reason.
const (
	Uninitialized ValidationState = iota
	CanExecute
	InvalidAmount
	InsufficientFunds
	BelowMinimumLimit
	InsufficientFundsForNewAccount
	PendingTransaction
	InsufficientGas
	InvoiceExpired
)

// String returns the state name used in output and metrics labels.
func (s ValidationState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case CanExecute:
		return "can_execute"
	case InvalidAmount:
		return "invalid_amount"
	case InsufficientFunds:
		return "insufficient_funds"
	case BelowMinimumLimit:
		return "below_minimum_limit"
	case InsufficientFundsForNewAccount:
		return "insufficient_funds_for_new_account"
	case PendingTransaction:
		return "pending_transaction"
	case InsufficientGas:
		return "insufficient_gas"
	case InvoiceExpired:
		return "invoice_expired"
	default:
		return "unknown"
	}
}

// IsValid reports whether execution may proceed.
func (s ValidationState) IsValid() bool {
	return s == CanExecute
}

// IsBelowMinimum reports either below-minimum reason.
func (s ValidationState) IsBelowMinimum() bool {
	return s == BelowMinimumLimit || s == InsufficientFundsForNewAccount
}

// Err returns the structured error for a failure reason, or nil.
func (s ValidationState) Err() error {
	switch s {
	case InvalidAmount:
		return coreerr.ErrInvalidAmount
	case InsufficientFunds:
		return coreerr.ErrInsufficientFunds
	case BelowMinimumLimit:
		return coreerr.ErrBelowMinimum
	case InsufficientFundsForNewAccount:
		return coreerr.ErrInsufficientFundsForNewAccount
	case PendingTransaction:
		return coreerr.ErrPendingTransaction
	case InsufficientGas:
		return coreerr.ErrInsufficientGas
	case InvoiceExpired:
		return coreerr.ErrInvoiceExpired
	case Uninitialized:
		return coreerr.ErrNotValidated
	default:
		return nil
	}
}

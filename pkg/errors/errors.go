// Package errors provides structured error handling for coincore.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Authentication failed
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Permission denied or insufficient funds
	ExitCancelled  = 6 // Operation cancelled by the user
)

// CoreError is the structured error type for coincore.
type CoreError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *CoreError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for CoreError. Two errors match when their codes match.
func (e *CoreError) Is(target error) bool {
	var t *CoreError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// General sentinel errors.
var (
	ErrGeneral = &CoreError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &CoreError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrAuthentication = &CoreError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		ExitCode: ExitAuth,
	}

	ErrNotFound = &CoreError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrNotSupported = &CoreError{
		Code:     "NOT_SUPPORTED",
		Message:  "operation not supported for this asset",
		ExitCode: ExitInput,
	}

	ErrDecryptionFailed = &CoreError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong password or corrupted file",
		ExitCode: ExitAuth,
	}

	ErrInvalidMnemonic = &CoreError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}
)

// Validation failures. These are reported back to the caller as the
// validation outcome of a pending transaction.
var (
	ErrInvalidAmount = &CoreError{
		Code:     "INVALID_AMOUNT",
		Message:  "amount must be greater than zero",
		ExitCode: ExitInput,
	}

	ErrInsufficientFunds = &CoreError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		ExitCode: ExitPermission,
	}

	ErrBelowMinimum = &CoreError{
		Code:     "BELOW_MINIMUM",
		Message:  "amount is below the minimum limit",
		ExitCode: ExitInput,
	}

	ErrInsufficientFundsForNewAccount = &CoreError{
		Code:     "INSUFFICIENT_FUNDS_FOR_NEW_ACCOUNT",
		Message:  "amount is below the minimum balance required to create the destination account",
		ExitCode: ExitInput,
	}

	ErrPendingTransaction = &CoreError{
		Code:     "PENDING_TRANSACTION",
		Message:  "a previous transaction from this account is still pending",
		ExitCode: ExitPermission,
	}

	ErrInsufficientGas = &CoreError{
		Code:     "INSUFFICIENT_GAS",
		Message:  "insufficient ether to pay the network fee",
		ExitCode: ExitPermission,
	}

	ErrInvoiceExpired = &CoreError{
		Code:     "INVOICE_EXPIRED",
		Message:  "payment invoice has expired",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &CoreError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidMemo = &CoreError{
		Code:     "INVALID_MEMO",
		Message:  "invalid memo",
		ExitCode: ExitInput,
	}
)

// Network and backend errors.
var (
	ErrNetworkError = &CoreError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	ErrTxRejected = &CoreError{
		Code:     "TX_REJECTED",
		Message:  "transaction rejected by network",
		ExitCode: ExitGeneral,
	}

	ErrOrderFailed = &CoreError{
		Code:     "ORDER_FAILED",
		Message:  "order could not be created",
		ExitCode: ExitGeneral,
	}

	ErrServiceUnavailable = &CoreError{
		Code:     "SERVICE_UNAVAILABLE",
		Message:  "remote service is temporarily unavailable",
		ExitCode: ExitGeneral,
	}
)

// Signing errors.
var (
	ErrKeyMismatch = &CoreError{
		Code:     "KEY_MISMATCH",
		Message:  "signing key does not match the source account",
		ExitCode: ExitAuth,
	}

	ErrSigningFailed = &CoreError{
		Code:     "SIGNING_FAILED",
		Message:  "transaction signing failed",
		ExitCode: ExitGeneral,
	}

	ErrCancelled = &CoreError{
		Code:     "CANCELLED",
		Message:  "operation cancelled",
		ExitCode: ExitCancelled,
	}
)

// Lifecycle errors.
var (
	ErrBusy = &CoreError{
		Code:     "BUSY",
		Message:  "transaction is already executing",
		ExitCode: ExitGeneral,
	}

	ErrStaleUpdate = &CoreError{
		Code:     "STALE_UPDATE",
		Message:  "update superseded by a newer amount",
		ExitCode: ExitGeneral,
	}

	ErrInvalidPhase = &CoreError{
		Code:     "INVALID_PHASE",
		Message:  "operation not allowed in the current transaction phase",
		ExitCode: ExitGeneral,
	}

	ErrNotValidated = &CoreError{
		Code:     "NOT_VALIDATED",
		Message:  "transaction failed validation",
		ExitCode: ExitInput,
	}

	ErrSessionClosed = &CoreError{
		Code:     "SESSION_CLOSED",
		Message:  "transaction session is closed",
		ExitCode: ExitGeneral,
	}
)

// Config errors.
var (
	ErrConfigNotFound = &CoreError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &CoreError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}
)

// New creates a new CoreError with the given code and message.
func New(code, message string) *CoreError {
	return &CoreError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ce *CoreError
	if errors.As(err, &ce) {
		return &CoreError{
			Code:       ce.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ce.Message),
			Details:    ce.Details,
			Suggestion: ce.Suggestion,
			Cause:      err,
			ExitCode:   ce.ExitCode,
		}
	}

	return &CoreError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ce *CoreError
	if errors.As(err, &ce) {
		return &CoreError{
			Code:       ce.Code,
			Message:    ce.Message,
			Details:    details,
			Suggestion: ce.Suggestion,
			Cause:      ce.Cause,
			ExitCode:   ce.ExitCode,
		}
	}

	return &CoreError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var ce *CoreError
	if errors.As(err, &ce) {
		return &CoreError{
			Code:       ce.Code,
			Message:    ce.Message,
			Details:    ce.Details,
			Suggestion: suggestion,
			Cause:      ce.Cause,
			ExitCode:   ce.ExitCode,
		}
	}

	return &CoreError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}

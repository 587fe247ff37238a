package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

var (
	errInner = errors.New("inner")
	errPlain = errors.New("plain error")
)

func TestExitCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, coreerr.ExitSuccess},
		{"general error", coreerr.ErrGeneral, coreerr.ExitGeneral},
		{"input error", coreerr.ErrInvalidInput, coreerr.ExitInput},
		{"auth error", coreerr.ErrAuthentication, coreerr.ExitAuth},
		{"not found error", coreerr.ErrNotFound, coreerr.ExitNotFound},
		{"insufficient funds", coreerr.ErrInsufficientFunds, coreerr.ExitPermission},
		{"pending transaction", coreerr.ErrPendingTransaction, coreerr.ExitPermission},
		{"cancelled", coreerr.ErrCancelled, coreerr.ExitCancelled},
		{"key mismatch", coreerr.ErrKeyMismatch, coreerr.ExitAuth},
		{"plain error", errPlain, coreerr.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, coreerr.ExitCode(tt.err))
		})
	}
}

func TestSentinelIdentitySurvivesWrapping(t *testing.T) {
	t.Parallel()
	sentinels := []*coreerr.CoreError{
		coreerr.ErrInvalidAmount,
		coreerr.ErrInsufficientFunds,
		coreerr.ErrBelowMinimum,
		coreerr.ErrInsufficientFundsForNewAccount,
		coreerr.ErrPendingTransaction,
		coreerr.ErrBusy,
		coreerr.ErrStaleUpdate,
		coreerr.ErrOrderFailed,
	}

	for _, sentinel := range sentinels {
		t.Run(sentinel.Code, func(t *testing.T) {
			t.Parallel()
			wrapped := coreerr.Wrap(sentinel, "account %s", "eth-main")
			require.ErrorIs(t, wrapped, sentinel)
			assert.Equal(t, sentinel.Code, coreerr.Code(wrapped))
			assert.Equal(t, sentinel.ExitCode, coreerr.ExitCode(wrapped))
		})
	}
}

func TestCoreError_Error(t *testing.T) {
	t.Parallel()

	t.Run("message only", func(t *testing.T) {
		t.Parallel()
		err := &coreerr.CoreError{Code: "TEST", Message: "something failed"}
		assert.Equal(t, "something failed", err.Error())
	})

	t.Run("with details sorted", func(t *testing.T) {
		t.Parallel()
		err := &coreerr.CoreError{
			Code:    "TEST",
			Message: "failed",
			Details: map[string]string{"beta": "2", "alpha": "1"},
		}
		assert.Equal(t, "failed (alpha: 1) (beta: 2)", err.Error())
	})

	t.Run("with details and cause", func(t *testing.T) {
		t.Parallel()
		err := &coreerr.CoreError{
			Code:    "TEST",
			Message: "outer",
			Details: map[string]string{"key": "val"},
			Cause:   errInner,
		}
		assert.Equal(t, "outer (key: val): inner", err.Error())
	})
}

func TestCoreError_Is(t *testing.T) {
	t.Parallel()

	a := &coreerr.CoreError{Code: "SAME_CODE", Message: "a"}
	b := &coreerr.CoreError{Code: "SAME_CODE", Message: "b"}
	c := &coreerr.CoreError{Code: "OTHER", Message: "c"}

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
	assert.False(t, a.Is(errPlain))
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("nil input", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, coreerr.Wrap(nil, "context"))
	})

	t.Run("plain error becomes general", func(t *testing.T) {
		t.Parallel()
		wrapped := coreerr.Wrap(errPlain, "fetch balance")
		var ce *coreerr.CoreError
		require.ErrorAs(t, wrapped, &ce)
		assert.Equal(t, "GENERAL_ERROR", ce.Code)
		assert.Equal(t, "fetch balance", ce.Message)
		assert.Equal(t, errPlain, ce.Cause)
	})

	t.Run("field preservation", func(t *testing.T) {
		t.Parallel()
		original := coreerr.WithDetails(coreerr.ErrInsufficientFunds, map[string]string{"available": "1.498"})
		original = coreerr.WithSuggestion(original, "lower the amount")
		wrapped := coreerr.Wrap(original, "validate")

		var ce *coreerr.CoreError
		require.ErrorAs(t, wrapped, &ce)
		assert.Equal(t, "INSUFFICIENT_FUNDS", ce.Code)
		assert.Equal(t, map[string]string{"available": "1.498"}, ce.Details)
		assert.Equal(t, "lower the amount", ce.Suggestion)
		assert.Equal(t, coreerr.ExitPermission, ce.ExitCode)
	})
}

func TestWithDetailsAndSuggestion_plainError(t *testing.T) {
	t.Parallel()

	withDetails := coreerr.WithDetails(errPlain, map[string]string{"k": "v"})
	var ce *coreerr.CoreError
	require.ErrorAs(t, withDetails, &ce)
	assert.Equal(t, "GENERAL_ERROR", ce.Code)
	assert.Equal(t, map[string]string{"k": "v"}, ce.Details)

	withSuggestion := coreerr.WithSuggestion(errPlain, "try again")
	require.ErrorAs(t, withSuggestion, &ce)
	assert.Equal(t, "try again", ce.Suggestion)
	assert.Equal(t, errPlain, ce.Cause)

	assert.NoError(t, coreerr.WithDetails(nil, nil))
	assert.NoError(t, coreerr.WithSuggestion(nil, "x"))
}

func TestNew(t *testing.T) {
	t.Parallel()
	err := coreerr.New("CUSTOM_ERROR", "custom error message")
	assert.Equal(t, "custom error message", err.Error())
	assert.Equal(t, "CUSTOM_ERROR", coreerr.Code(err))
	assert.Equal(t, coreerr.ExitGeneral, coreerr.ExitCode(err))
}

func TestCode_nil(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "GENERAL_ERROR", coreerr.Code(nil))
	assert.False(t, coreerr.Is(nil, coreerr.ErrGeneral))
}

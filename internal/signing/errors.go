package signing

import (
	"context"
	"errors"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Kind classifies a signing failure.
type Kind int

// Signing failure kinds.
const (
	KindUnknown Kind = iota
	KindKeyMismatch
	KindCancelled
	KindNetworkRejected
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindKeyMismatch:
		return "key-mismatch"
	case KindCancelled:
		return "cancelled"
	case KindNetworkRejected:
		return "network-rejected"
	default:
		return "unknown"
	}
}

// Error is a classified signing or broadcast failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return "signing failed (" + e.Kind.String() + "): " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify wraps err in an *Error. Already classified errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	kind := KindUnknown
	switch {
	case errors.Is(err, coreerr.ErrKeyMismatch):
		kind = KindKeyMismatch
	case errors.Is(err, coreerr.ErrCancelled), errors.Is(err, context.Canceled):
		kind = KindCancelled
	case errors.Is(err, coreerr.ErrTxRejected),
		errors.Is(err, coreerr.ErrNetworkError),
		errors.Is(err, coreerr.ErrServiceUnavailable):
		kind = KindNetworkRejected
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(Classify(err), &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether err is a user cancellation, which callers
// treat as a silent abort rather than a failure.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindCancelled
}

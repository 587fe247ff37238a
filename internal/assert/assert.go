// Package assert provides always-on precondition checks for programming bugs.
//
// A failed precondition means a caller wired the engine incorrectly (an
// unsupported source/target pairing, a fee level the route never offered, an
// operation called out of order). These are not reachable through correct use,
// so a failure panics with a *PreconditionError rather than returning an error.
// Conditions that can legitimately fail (user input, I/O) must use error
// returns instead.
package assert

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPreconditionFailed is the sentinel matched by every *PreconditionError.
var ErrPreconditionFailed = errors.New("precondition failed")

// PreconditionError describes a violated precondition.
type PreconditionError struct {
	Component string
	Message   string
	Context   []string
}

func (e *PreconditionError) Error() string {
	var b strings.Builder
	b.WriteString("precondition failed")
	if e.Component != "" {
		b.WriteString(" in ")
		b.WriteString(e.Component)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	for _, kv := range e.Context {
		b.WriteString("\n    ")
		b.WriteString(kv)
	}
	return b.String()
}

// Unwrap makes errors.Is(err, ErrPreconditionFailed) hold.
func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

// That panics with a *PreconditionError when ok is false.
// kv is an optional list of alternating keys and values added as context.
func That(component string, ok bool, msg string, kv ...any) {
	if ok {
		return
	}
	panic(newError(component, msg, kv))
}

// NotNil panics when v is nil.
func NotNil(component string, v any, msg string, kv ...any) {
	That(component, v != nil, msg, kv...)
}

// Never always panics. Use it for unreachable branches such as exhaustive switches.
func Never(component, msg string, kv ...any) {
	panic(newError(component, msg, kv))
}

// Catch runs fn and returns the *PreconditionError it panicked with, or nil.
// Any other panic is re-raised.
func Catch(fn func()) (perr *PreconditionError) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if pe, ok := r.(*PreconditionError); ok {
			perr = pe
			return
		}
		panic(r)
	}()
	fn()
	return nil
}

func newError(component, msg string, kv []any) *PreconditionError {
	pairs := make([]string, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		value := "MISSING_VALUE"
		if i+1 < len(kv) {
			value = fmt.Sprint(kv[i+1])
		}
		pairs = append(pairs, key+"="+value)
	}
	return &PreconditionError{Component: component, Message: msg, Context: pairs}
}

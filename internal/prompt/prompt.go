// Package prompt asks the user for the second password that unlocks
// signing keys. Terminal reads it with echo disabled; Static answers from
// memory for tests and non-interactive callers.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// DefaultLabel is shown before the hidden input.
const DefaultLabel = "Second password: "

// Terminal reads passwords from a file descriptor. When the input is a
// terminal, echo is disabled; otherwise one line is read as is, which
// lets scripts pipe the password in.
type Terminal struct {
	in    *os.File
	out   io.Writer
	label string

	reader *bufio.Reader
}

// NewTerminal creates a prompt reading from in and writing labels to out.
func NewTerminal(in *os.File, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, label: DefaultLabel}
}

// WithLabel returns a copy of t that shows label instead of DefaultLabel.
func (t *Terminal) WithLabel(label string) *Terminal {
	c := *t
	c.label = label
	return &c
}

// RequestSecondPassword reads one password. Empty input, end of input and
// a done context all report ok=false.
func (t *Terminal) RequestSecondPassword(ctx context.Context) (string, bool, error) {
	pw, err := t.read(ctx, t.label)
	switch {
	case errors.Is(err, io.EOF):
		return "", false, nil
	case err != nil:
		return "", false, err
	case pw == "":
		return "", false, nil
	}
	return pw, true, nil
}

// NewPassword asks for a password twice and requires both entries to match.
func (t *Terminal) NewPassword(ctx context.Context) (string, error) {
	pw, err := t.read(ctx, "New second password: ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", coreerr.WithSuggestion(coreerr.ErrInvalidInput, "the second password must not be empty")
	}

	confirm, err := t.read(ctx, "Confirm second password: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", coreerr.WithSuggestion(coreerr.ErrInvalidInput, "passwords do not match")
	}
	return pw, nil
}

// Line reads a visible line, for non-secret answers such as confirmations.
func (t *Terminal) Line(ctx context.Context, label string) (string, error) {
	if _, err := fmt.Fprint(t.out, label); err != nil {
		return "", err
	}
	return t.await(ctx, t.readLine)
}

func (t *Terminal) read(ctx context.Context, label string) (string, error) {
	if _, err := fmt.Fprint(t.out, label); err != nil {
		return "", err
	}

	fd := int(t.in.Fd()) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
	if !term.IsTerminal(fd) {
		return t.await(ctx, t.readLine)
	}

	pw, err := t.await(ctx, func() (string, error) {
		b, err := term.ReadPassword(fd)
		return string(b), err
	})
	_, _ = fmt.Fprintln(t.out)
	return pw, err
}

// await runs read on its own goroutine so a done context returns at once.
// The read itself cannot be interrupted and finishes in the background.
func (t *Terminal) await(ctx context.Context, read func() (string, error)) (string, error) {
	type answer struct {
		s   string
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		s, err := read()
		ch <- answer{s, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-ch:
		return a.s, a.err
	}
}

func (t *Terminal) readLine() (string, error) {
	if t.reader == nil {
		t.reader = bufio.NewReader(t.in)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Static answers every request with the same password. A Static with
// Cancel set reports a cancelled prompt.
type Static struct {
	Password string
	Cancel   bool
}

// RequestSecondPassword implements the engine's prompt contract.
func (s Static) RequestSecondPassword(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if s.Cancel {
		return "", false, nil
	}
	return s.Password, true, nil
}

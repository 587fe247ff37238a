package prompt

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// pipeTerminal returns a Terminal whose input is a pipe preloaded with input.
// The write end is closed so reads past the input see EOF.
func pipeTerminal(t *testing.T, input string) (*Terminal, *bytes.Buffer) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, err = w.WriteString(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var out bytes.Buffer
	return NewTerminal(r, &out), &out
}

func TestTerminal_RequestSecondPassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"line", "hunter2\n", "hunter2", true},
		{"crlf", "hunter2\r\n", "hunter2", true},
		{"no trailing newline", "hunter2", "hunter2", true},
		{"empty line cancels", "\n", "", false},
		{"eof cancels", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			term, out := pipeTerminal(t, tt.input)

			pw, ok, err := term.RequestSecondPassword(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, pw)
			assert.Equal(t, DefaultLabel, out.String())
		})
	}
}

func TestTerminal_CancelledContext(t *testing.T) {
	t.Parallel()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = w.Close()
		_ = r.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pw, ok, err := NewTerminal(r, &bytes.Buffer{}).RequestSecondPassword(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
	assert.Empty(t, pw)
}

func TestTerminal_WithLabel(t *testing.T) {
	t.Parallel()
	term, out := pipeTerminal(t, "pw\n")

	_, ok, err := term.WithLabel("Unlock ETH: ").RequestSecondPassword(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Unlock ETH: ", out.String())
}

func TestTerminal_NewPassword(t *testing.T) {
	t.Parallel()

	t.Run("matching", func(t *testing.T) {
		t.Parallel()
		term, _ := pipeTerminal(t, "secret\nsecret\n")
		pw, err := term.NewPassword(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "secret", pw)
	})

	t.Run("mismatch", func(t *testing.T) {
		t.Parallel()
		term, _ := pipeTerminal(t, "secret\nother\n")
		_, err := term.NewPassword(context.Background())
		require.ErrorIs(t, err, coreerr.ErrInvalidInput)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		term, _ := pipeTerminal(t, "\n")
		_, err := term.NewPassword(context.Background())
		require.ErrorIs(t, err, coreerr.ErrInvalidInput)
	})
}

func TestTerminal_Line(t *testing.T) {
	t.Parallel()
	term, out := pipeTerminal(t, "yes\n")
	answer, err := term.Line(context.Background(), "Send? [y/N]: ")
	require.NoError(t, err)
	assert.Equal(t, "yes", answer)
	assert.Equal(t, "Send? [y/N]: ", out.String())
}

func TestStatic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pw, ok, err := Static{Password: "pw"}.RequestSecondPassword(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pw", pw)

	_, ok, err = Static{Cancel: true}.RequestSecondPassword(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, ok, err = Static{Password: "pw"}.RequestSecondPassword(cancelled)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

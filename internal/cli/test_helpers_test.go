package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coincore/internal/config"
	"github.com/mrz1836/coincore/internal/metrics"
)

// fakePrompter answers prompts from memory. Line pops answers in order.
type fakePrompter struct {
	password string
	cancel   bool
	lines    []string

	labels []string
}

func (p *fakePrompter) RequestSecondPassword(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if p.cancel {
		return "", false, nil
	}
	return p.password, true, nil
}

func (p *fakePrompter) NewPassword(context.Context) (string, error) {
	return p.password, nil
}

func (p *fakePrompter) Line(_ context.Context, label string) (string, error) {
	p.labels = append(p.labels, label)
	if len(p.lines) == 0 {
		return "", nil
	}
	line := p.lines[0]
	p.lines = p.lines[1:]
	return line, nil
}

// withPrompter replaces the terminal prompt and restores it on cleanup.
func withPrompter(t *testing.T, p prompter) {
	t.Helper()
	orig := newPrompter
	t.Cleanup(func() { newPrompter = orig })
	newPrompter = func(*cobra.Command) prompter { return p }
}

// withBackends replaces backend wiring and restores it on cleanup.
func withBackends(t *testing.T, fn func() *backends) {
	t.Helper()
	orig := openBackends
	t.Cleanup(func() { openBackends = orig })
	openBackends = func(context.Context, *config.Config, *config.Logger, *metrics.Metrics) (*backends, error) {
		return fn(), nil
	}
}

// resetFlags clears flag values left over from a previous run.
func resetFlags() {
	homeDir, outputFormat, verbose = "", "auto", false
	quoteFlags, sendFlags = transferFlags{}, transferFlags{}
	sendYes = false
	initWords, initImport, initStellar, initBIP39 = 12, false, false, false
}

// runCommand executes the root command with args and returns its stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// quoteTimeout bounds the balance, fee and rate lookups of a quote.
const quoteTimeout = 45 * time.Second

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var quoteFlags transferFlags

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a transfer without sending it",
	Long: `Price a transfer and print the confirmation summary.

The quote fetches the spendable balance, the network fee at the chosen level
and the fiat rate, then reports whether the transfer could be sent.`,
	Example: `  coincore quote --asset eth --from 0xabc... --to 0xdef... --amount 1.4
  coincore quote --asset btc --from bc1q... --to trading --amount 0.01 --fee priority
  coincore quote --asset xlm --from trading --to domain:alice.x --amount 25`,
	RunE: runQuote,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	quoteFlags.register(quoteCmd)
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, _ []string) error {
	t, err := quoteFlags.parse()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), quoteTimeout)
	defer cancel()

	b, err := openBackends(ctx, cfg, logger, recorder)
	if err != nil {
		return err
	}
	defer b.Close()

	s, err := openSession(ctx, b.coordinator, t, &quoteFlags, newPrompter(cmd))
	if err != nil {
		return err
	}
	defer s.Close()

	return showTransaction(s.Engine().Route(), s.Snapshot())
}

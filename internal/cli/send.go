package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coincore/internal/output"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	sendFlags transferFlags
	sendYes   bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transfer",
	Long: `Price a transfer, confirm it and send it.

The confirmation summary is printed first. Unless --yes is given, the
transfer is sent only after an explicit "y". Routes that sign locally then
ask for the second password that unlocks the keystore.`,
	Example: `  coincore send --asset eth --from 0xabc... --to 0xdef... --amount 1.4
  coincore send --asset btc --from bc1q... --to invoice:KQxJ2s... --yes
  coincore send --asset xlm --from G... --to G... --amount 25 --memo 1234`,
	RunE: runSend,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	sendFlags.register(sendCmd)
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "skip the confirmation question")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, _ []string) error {
	t, err := sendFlags.parse()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p := newPrompter(cmd)

	b, err := openBackends(ctx, cfg, logger, recorder)
	if err != nil {
		return err
	}
	defer b.Close()

	s, err := openSession(ctx, b.coordinator, t, &sendFlags, p)
	if err != nil {
		return err
	}
	defer s.Close()

	tx := s.Snapshot()
	if err := showTransaction(s.Engine().Route(), tx); err != nil {
		return err
	}
	if !tx.Validation.IsValid() {
		return tx.Validation.Err()
	}

	if !sendYes {
		answer, err := p.Line(ctx, "Send this transfer? [y/N]: ")
		if err != nil {
			return err
		}
		if !confirmed(answer) {
			return coreerr.ErrCancelled
		}
	}

	res, err := s.Execute(ctx)
	if err != nil {
		return err
	}
	logger.Debug("send %s: %s %s", s.Engine().Route(), res.Kind, res.TxHash)

	return formatter.Print(output.ResultView{
		Status:  res.Kind.String(),
		TxHash:  res.TxHash,
		OrderID: res.OrderID,
		Amount:  res.Amount.DisplayString(),
	})
}

func confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

package cli

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/coordinator"
	"github.com/mrz1836/coincore/internal/engine"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/output"
	"github.com/mrz1836/coincore/internal/pending"
	"github.com/mrz1836/coincore/internal/prompt"
	"github.com/mrz1836/coincore/internal/target"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Prefixes that select a non-address target or source.
const (
	tradingKeyword = "trading"
	invoicePrefix  = "invoice:"
	domainPrefix   = "domain:"
)

// prompter is the interactive surface of the commands.
type prompter interface {
	engine.SecondPasswordPrompt
	NewPassword(ctx context.Context) (string, error)
	Line(ctx context.Context, label string) (string, error)
}

// newPrompter is replaced in tests.
//
//nolint:gochecknoglobals // Test seam
var newPrompter = func(cmd *cobra.Command) prompter {
	return prompt.NewTerminal(os.Stdin, cmd.ErrOrStderr())
}

// transferFlags are shared by quote and send.
type transferFlags struct {
	asset   string
	from    string
	to      string
	amount  string
	feeTier string
	feeRate string
	memo    string
	note    string
}

func (f *transferFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.asset, "asset", "", "asset to send: eth, usdc, btc, xlm (required)")
	cmd.Flags().StringVar(&f.from, "from", "", "source wallet address, or 'trading' (required)")
	cmd.Flags().StringVar(&f.to, "to", "", "destination address, 'trading', 'invoice:<id>' or 'domain:<name>' (required)")
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount in whole units, e.g. 1.4")
	cmd.Flags().StringVar(&f.feeTier, "fee", "", "fee level: low, regular, priority, custom")
	cmd.Flags().StringVar(&f.feeRate, "fee-rate", "", "custom per-unit fee in minor units (wei/gas, sat/vB, stroops)")
	cmd.Flags().StringVar(&f.memo, "memo", "", "memo for routes that carry one")
	cmd.Flags().StringVar(&f.note, "note", "", "local note shown on the confirmation")

	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
}

// transfer is a parsed transfer request.
type transfer struct {
	asset  chain.Asset
	source account.Account
	target target.Target
	// amount is nil for invoice targets, which fix it.
	amount *money.Value
	level  fee.Level
	custom *big.Int
}

// parse validates the flags and builds the engine inputs.
func (f *transferFlags) parse() (transfer, error) {
	asset, err := chain.ParseAsset(f.asset)
	if err != nil {
		return transfer{}, err
	}

	t := transfer{asset: asset}
	if t.source, err = parseSource(f.from, asset); err != nil {
		return transfer{}, err
	}
	if t.target, err = parseTarget(f.to, asset); err != nil {
		return transfer{}, err
	}

	switch {
	case f.amount != "":
		v, err := money.NewFromMajor(strings.TrimSpace(f.amount), asset.Currency)
		if err != nil {
			return transfer{}, coreerr.WithDetails(coreerr.ErrInvalidAmount, map[string]string{"amount": f.amount})
		}
		t.amount = &v
	case t.target.Kind() != target.KindBitPayInvoice:
		return transfer{}, coreerr.WithSuggestion(coreerr.ErrInvalidAmount, "pass --amount")
	}

	if f.feeTier != "" {
		if t.level, err = fee.ParseLevel(f.feeTier); err != nil {
			return transfer{}, err
		}
	}
	if f.feeRate != "" {
		custom, ok := new(big.Int).SetString(strings.TrimSpace(f.feeRate), 10)
		if !ok || custom.Sign() <= 0 {
			return transfer{}, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"fee-rate": f.feeRate})
		}
		t.level, t.custom = fee.Custom, custom
	}
	if t.level == fee.Custom && t.custom == nil {
		return transfer{}, coreerr.WithSuggestion(coreerr.ErrInvalidInput, "--fee custom requires --fee-rate")
	}
	return t, nil
}

func parseSource(from string, asset chain.Asset) (account.Account, error) {
	from = strings.TrimSpace(from)
	if strings.EqualFold(from, tradingKeyword) {
		return account.Account{
			ID:    "trading:" + asset.Currency.Code,
			Label: asset.Currency.Code + " Trading Account",
			Asset: asset,
			Type:  account.Trading,
		}, nil
	}

	acct := account.Account{
		ID:      string(asset.Chain) + ":" + from,
		Label:   asset.Currency.Code + " Wallet",
		Asset:   asset,
		Type:    account.NonCustodial,
		Address: from,
	}
	if err := acct.Validate(); err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

func parseTarget(to string, asset chain.Asset) (target.Target, error) {
	to = strings.TrimSpace(to)
	lower := strings.ToLower(to)
	switch {
	case lower == tradingKeyword:
		return target.Custodial{AccountID: "trading:" + asset.Currency.Code, Asset: asset.Currency}, nil
	case strings.HasPrefix(lower, invoicePrefix):
		return target.BitPayInvoice{InvoiceID: to[len(invoicePrefix):], Asset: asset.Currency}, nil
	case strings.HasPrefix(lower, domainPrefix):
		return target.Domain{Name: to[len(domainPrefix):], Asset: asset.Currency}, nil
	case to == "":
		return nil, coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{"to": to})
	default:
		return target.Address{Asset: asset.Currency, Address: to}, nil
	}
}

// openSession selects the engine for t, starts a session and applies the
// requested amount, fee level, memo and note. The caller must Close it.
func openSession(ctx context.Context, co *coordinator.Coordinator, t transfer, f *transferFlags, prompt engine.SecondPasswordPrompt) (*engine.Session, error) {
	if !co.Supports(t.source, t.target, t.asset) {
		return nil, coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{
			"from":  t.source.Type.String(),
			"to":    t.target.Kind().String(),
			"asset": t.asset.Currency.Code,
		})
	}
	eng := co.Select(t.source, t.target, t.asset)

	s, err := engine.NewSession(ctx, eng, engine.SessionOptions{Prompt: prompt, Logger: logger, Metrics: recorder})
	if err != nil {
		return nil, err
	}
	if err := configure(ctx, s, t, f); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func configure(ctx context.Context, s *engine.Session, t transfer, f *transferFlags) error {
	if t.level != fee.None {
		available := s.Snapshot().FeeSelection.Available
		if !available.Contains(t.level) {
			return coreerr.WithSuggestion(
				coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"fee": t.level.String()}),
				fmt.Sprintf("the %s route offers: %s", s.Engine().Route(), available),
			)
		}
		if _, err := s.UpdateFeeLevel(ctx, t.level, t.custom); err != nil {
			return err
		}
	}

	amount := money.Zero(t.asset.Currency)
	if t.amount != nil {
		amount = *t.amount
	}
	if _, err := s.UpdateAmount(ctx, amount); err != nil {
		return err
	}

	if f.memo != "" {
		if _, err := s.UpdateMemo(ctx, f.memo); err != nil {
			return err
		}
	}
	if f.note != "" {
		if _, err := s.UpdateNote(ctx, f.note); err != nil {
			return err
		}
	}

	if _, err := s.BuildConfirmations(ctx); err != nil {
		return err
	}
	_, err := s.Validate(ctx)
	return err
}

// showTransaction prints the confirmation summary of tx.
func showTransaction(route string, tx pending.Transaction) error {
	return formatter.Print(output.NewTransactionView(route, tx))
}

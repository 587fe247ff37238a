package engine

import (
	"context"
	"time"

	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	"github.com/mrz1836/coincore/internal/target"
)

// confirmationLines builds the summary shown before execution. Fiat values
// come from cached display rates and are omitted when no rate is known.
func (b *base) confirmationLines(ctx context.Context, tx pending.Transaction, dest *target.Destination) []pending.Confirmation {
	amountCur := tx.Amount.Currency()
	feeCur := tx.NetworkFee.Currency()
	rates := b.fiatRates(ctx, amountCur, feeCur)

	fiat := func(v money.Value) (money.Value, bool) {
		p, ok := rates[v.Currency().Code]
		if !ok {
			return money.Value{}, false
		}
		return p.Convert(v), true
	}
	fiatString := func(v money.Value) string {
		if f, ok := fiat(v); ok {
			return f.DisplayString()
		}
		return ""
	}
	line := func(kind pending.ConfirmationKind, value, fiatValue string) pending.Confirmation {
		return pending.Confirmation{Kind: kind, Label: kind.String(), Value: value, Fiat: fiatValue}
	}

	to := b.target.Label()
	if dest != nil && dest.Address != "" && dest.Address != to {
		to += " (" + dest.Address + ")"
	}

	lines := []pending.Confirmation{
		line(pending.ConfirmSource, b.source.DisplayName(), ""),
		line(pending.ConfirmDestination, to, ""),
		line(pending.ConfirmAmount, tx.Amount.String(), fiatString(tx.Amount)),
		line(pending.ConfirmNetworkFee, tx.NetworkFee.String(), fiatString(tx.NetworkFee)),
	}

	var total pending.Confirmation
	if feeCur.Equal(amountCur) {
		sum := tx.Amount.Add(tx.NetworkFee)
		total = line(pending.ConfirmTotal, sum.String(), fiatString(sum))
	} else {
		total = line(pending.ConfirmTotal, tx.Amount.String()+" + "+tx.NetworkFee.String(), "")
		if a, ok := fiat(tx.Amount); ok {
			if f, ok := fiat(tx.NetworkFee); ok {
				total.Fiat = a.Add(f).DisplayString()
			}
		}
	}
	lines = append(lines, total)

	memo := tx.Memo
	if memo == "" && dest != nil {
		memo = dest.Memo
	}
	if memo != "" {
		lines = append(lines, line(pending.ConfirmMemo, memo, ""))
	}
	if tx.Note != "" {
		lines = append(lines, line(pending.ConfirmNote, tx.Note, ""))
	}
	if dest != nil && !dest.Expires.IsZero() {
		lines = append(lines, line(pending.ConfirmInvoiceExpiry, dest.Expires.UTC().Format(time.RFC3339), ""))
	}
	return lines
}

// Package pending models the in-flight transfer record threaded through an
// engine: amounts, fee selection, confirmations, validation outcome and phase.
//
// A Transaction is a value. Every update returns a new copy and never
// mutates the receiver, so snapshots handed to observers stay stable.
package pending

import (
	"slices"

	"github.com/google/uuid"

	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/money"
)

// Transaction is the record of one transaction attempt.
type Transaction struct {
	ID uuid.UUID
	// Revision increases on every change that invalidates a prior validation.
	Revision uint64
	Phase    Phase

	Amount              money.Value
	Available           money.Value
	FeeAmount           money.Value
	FeeForFullAvailable money.Value
	MinimumLimit        money.Value
	// NetworkFee is the fee in the currency that pays it. It equals FeeAmount
	// for native assets; for tokens FeeAmount is zero and NetworkFee holds the gas.
	NetworkFee money.Value

	FeeSelection  FeeSelection
	SelectedFiat  money.Currency
	Confirmations []Confirmation

	Validation         ValidationState
	ValidatedRevision  uint64
	ValidatedSelection FeeSelection

	Memo string
	Note string

	// TxHash is set once Completed.
	TxHash string
	// Err is set once Failed.
	Err error
}

// New returns a zero-amount transaction in the Initialized phase.
func New(currency, feeCurrency, fiat money.Currency, selection FeeSelection) Transaction {
	zero := money.Zero(currency)
	return Transaction{
		ID:                  uuid.New(),
		Phase:               Initialized,
		Amount:              zero,
		Available:           zero,
		FeeAmount:           zero,
		FeeForFullAvailable: zero,
		MinimumLimit:        zero,
		NetworkFee:          money.Zero(feeCurrency),
		FeeSelection:        selection,
		SelectedFiat:        fiat,
	}
}

// Currency returns the source currency.
func (t Transaction) Currency() money.Currency {
	return t.Amount.Currency()
}

// WithAmount returns a copy with a new amount. Confirmations and validation are reset.
func (t Transaction) WithAmount(amount money.Value) Transaction {
	t.mustMatch(amount, "amount")
	t.Amount = amount
	t = t.invalidate()
	if t.Phase.Editable() {
		t.Phase = AmountEntered
	}
	return t
}

// WithBalance returns a copy with a recomputed available balance and fees.
func (t Transaction) WithBalance(available, feeAmount, feeForFullAvailable, networkFee money.Value) Transaction {
	t.mustMatch(available, "available")
	t.mustMatch(feeAmount, "feeAmount")
	t.mustMatch(feeForFullAvailable, "feeForFullAvailable")
	assert.That("pending", networkFee.Currency().Equal(t.NetworkFee.Currency()), "network fee currency changed",
		"want", t.NetworkFee.Currency(), "got", networkFee.Currency())
	t.Available = available
	t.FeeAmount = feeAmount
	t.FeeForFullAvailable = feeForFullAvailable
	t.NetworkFee = networkFee
	return t.invalidate()
}

// WithMinimumLimit returns a copy with a new minimum.
func (t Transaction) WithMinimumLimit(minimum money.Value) Transaction {
	t.mustMatch(minimum, "minimumLimit")
	t.MinimumLimit = minimum
	return t.invalidate()
}

// WithFeeSelection returns a copy with a new fee selection.
func (t Transaction) WithFeeSelection(selection FeeSelection) Transaction {
	assert.That("pending", selection.Available.Contains(selection.Selected), "fee level not offered by route",
		"level", selection.Selected)
	t.FeeSelection = selection
	return t.invalidate()
}

// WithMemo returns a copy with a memo.
func (t Transaction) WithMemo(memo string) Transaction {
	t.Memo = memo
	return t.invalidate()
}

// WithNote returns a copy with a note. Notes are not sent on chain.
func (t Transaction) WithNote(note string) Transaction {
	t.Note = note
	t.Confirmations = slices.Clone(t.Confirmations)
	return t
}

// WithConfirmations returns a copy holding lines in the ConfirmationsBuilt phase.
func (t Transaction) WithConfirmations(lines []Confirmation) Transaction {
	t.Confirmations = slices.Clone(lines)
	t.Phase = ConfirmationsBuilt
	return t
}

// WithValidation returns a copy in the Validated phase, stamped with the
// revision and fee selection the validation ran against.
func (t Transaction) WithValidation(state ValidationState) Transaction {
	t.Confirmations = slices.Clone(t.Confirmations)
	t.Validation = state
	t.ValidatedRevision = t.Revision
	t.ValidatedSelection = t.FeeSelection
	t.Phase = Validated
	return t
}

// WithPhase returns a copy in phase p.
func (t Transaction) WithPhase(p Phase) Transaction {
	t.Confirmations = slices.Clone(t.Confirmations)
	t.Phase = p
	return t
}

// Completed returns a copy in the Completed phase.
func (t Transaction) Completed(txHash string) Transaction {
	t = t.WithPhase(Completed)
	t.TxHash = txHash
	return t
}

// Failed returns a copy in the Failed phase.
func (t Transaction) Failed(err error) Transaction {
	t = t.WithPhase(Failed)
	t.Err = err
	return t
}

// ReadyToExecute reports whether the last validation passed and still
// matches the current amount, balance and fee level.
func (t Transaction) ReadyToExecute() bool {
	return t.Phase == Validated &&
		t.Validation.IsValid() &&
		t.ValidatedRevision == t.Revision &&
		t.ValidatedSelection.Selected == t.FeeSelection.Selected &&
		customEqual(t.ValidatedSelection, t.FeeSelection)
}

// CheckCurrencies panics unless amount, available, fee and minimum share one currency.
func (t Transaction) CheckCurrencies() {
	c := t.Amount.Currency()
	for name, v := range map[string]money.Value{
		"available":           t.Available,
		"feeAmount":           t.FeeAmount,
		"feeForFullAvailable": t.FeeForFullAvailable,
		"minimumLimit":        t.MinimumLimit,
	} {
		assert.That("pending", v.Currency().Equal(c), "currency mismatch", "field", name, "want", c, "got", v.Currency())
	}
}

// invalidate bumps the revision and drops derived state after an input change.
func (t Transaction) invalidate() Transaction {
	t.Revision++
	t.Confirmations = nil
	t.Validation = Uninitialized
	if t.Phase > AmountEntered && t.Phase.Editable() {
		t.Phase = AmountEntered
	}
	return t
}

func (t Transaction) mustMatch(v money.Value, field string) {
	assert.That("pending", v.Currency().Equal(t.Amount.Currency()), "currency mismatch",
		"field", field, "want", t.Amount.Currency(), "got", v.Currency())
}

func customEqual(a, b FeeSelection) bool {
	if a.Custom == nil || b.Custom == nil {
		return a.Custom == b.Custom
	}
	return a.Custom.Cmp(b.Custom) == 0
}

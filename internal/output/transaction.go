package output

import (
	"strings"

	"github.com/mrz1836/coincore/internal/pending"
)

// TransactionView is the printable form of a pending transaction.
type TransactionView struct {
	ID            string                 `json:"id"`
	Route         string                 `json:"route"`
	Phase         string                 `json:"phase"`
	Amount        string                 `json:"amount"`
	Available     string                 `json:"available"`
	Fee           string                 `json:"fee"`
	FeeLevel      string                 `json:"fee_level"`
	FeeLevels     []string               `json:"fee_levels"`
	Minimum       string                 `json:"minimum,omitempty"`
	Validation    string                 `json:"validation"`
	Valid         bool                   `json:"valid"`
	Confirmations []pending.Confirmation `json:"confirmations"`
}

// NewTransactionView builds the view of tx for an engine route.
func NewTransactionView(route string, tx pending.Transaction) TransactionView {
	levels := tx.FeeSelection.Available.Levels()
	names := make([]string, 0, len(levels))
	for _, l := range levels {
		names = append(names, l.String())
	}

	v := TransactionView{
		ID:            tx.ID.String(),
		Route:         route,
		Phase:         tx.Phase.String(),
		Amount:        tx.Amount.DisplayString(),
		Available:     tx.Available.DisplayString(),
		Fee:           tx.NetworkFee.DisplayString(),
		FeeLevel:      tx.FeeSelection.Selected.String(),
		FeeLevels:     names,
		Validation:    tx.Validation.String(),
		Valid:         tx.Validation.IsValid(),
		Confirmations: tx.Confirmations,
	}
	if tx.MinimumLimit.IsPositive() {
		v.Minimum = tx.MinimumLimit.DisplayString()
	}
	if v.Confirmations == nil {
		v.Confirmations = []pending.Confirmation{}
	}
	return v
}

// Table renders the confirmation lines followed by the validation outcome.
func (v TransactionView) Table() *Table {
	t := NewTable()
	t.SetNoHeader(true)
	for _, c := range v.Confirmations {
		value := c.Value
		if c.Fiat != "" {
			value += " (" + c.Fiat + ")"
		}
		t.AddRow(c.Label+":", value)
	}
	if v.Minimum != "" {
		t.AddRow("Minimum:", v.Minimum)
	}
	t.AddRow("Fee level:", v.FeeLevel+" ("+strings.Join(v.FeeLevels, ", ")+")")
	t.AddRow("Status:", v.Validation)
	return t
}

// ResultView is the printable outcome of an executed transfer.
type ResultView struct {
	Status  string `json:"status"`
	TxHash  string `json:"tx_hash,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Amount  string `json:"amount"`
}

// String implements fmt.Stringer for text output.
func (r ResultView) String() string {
	var sb strings.Builder
	sb.WriteString("Status: " + r.Status)
	if r.TxHash != "" {
		sb.WriteString("\nTransaction: " + r.TxHash)
	}
	if r.OrderID != "" {
		sb.WriteString("\nOrder: " + r.OrderID)
	}
	sb.WriteString("\nAmount: " + r.Amount)
	return sb.String()
}

package pending

// ConfirmationKind identifies a confirmation line.
type ConfirmationKind int

// Confirmation line kinds, in display order.
const (
	ConfirmSource ConfirmationKind = iota
	ConfirmDestination
	ConfirmAmount
	ConfirmNetworkFee
	ConfirmTotal
	ConfirmMemo
	ConfirmNote
	ConfirmInvoiceExpiry
)

// String returns the line label.
func (k ConfirmationKind) String() string {
	switch k {
	case ConfirmSource:
		return "From"
	case ConfirmDestination:
		return "To"
	case ConfirmAmount:
		return "Amount"
	case ConfirmNetworkFee:
		return "Network Fee"
	case ConfirmTotal:
		return "Total"
	case ConfirmMemo:
		return "Memo"
	case ConfirmNote:
		return "Note"
	case ConfirmInvoiceExpiry:
		return "Expires"
	default:
		return "Unknown"
	}
}

// Confirmation is one summary line shown before execution.
type Confirmation struct {
	Kind  ConfirmationKind `json:"kind"`
	Label string           `json:"label"`
	Value string           `json:"value"`
	// Fiat is the display-currency equivalent, empty when no rate is known.
	Fiat string `json:"fiat,omitempty"`
}

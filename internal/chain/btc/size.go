package btc

import (
	"fmt"
	"sort"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

const (
	// DustLimit is the minimum output value in satoshis.
	DustLimit = 546

	// P2PKHInputSize is the size of a signed P2PKH input in bytes.
	P2PKHInputSize = 148

	// P2PKHOutputSize is the size of a P2PKH output in bytes.
	P2PKHOutputSize = 34

	// TxOverhead is the fixed overhead for a transaction in bytes.
	TxOverhead = 10
)

// EstimateTxSize estimates the size of a P2PKH transaction in bytes.
// Legacy inputs carry no witness, so size and vsize are equal.
func EstimateTxSize(numInputs, numOutputs int) uint64 {
	//nolint:gosec // counts are small and non-negative
	return uint64(TxOverhead + numInputs*P2PKHInputSize + numOutputs*P2PKHOutputSize)
}

// Selection is the result of choosing inputs for a payment.
type Selection struct {
	Inputs []UTXO
	Fee    uint64
	Change uint64 // zero when the remainder is dust and goes to the fee
}

// Total returns the sum of the selected inputs.
func (s Selection) Total() uint64 {
	var total uint64
	for _, u := range s.Inputs {
		total += u.Value
	}
	return total
}

// SelectUTXOs picks inputs largest first until they cover amount plus the fee
// for the inputs chosen so far, with a recipient and a change output.
func SelectUTXOs(utxos []UTXO, amount, feeRate uint64) (Selection, error) {
	sorted := make([]UTXO, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	var sel Selection
	var total uint64
	for _, u := range sorted {
		sel.Inputs = append(sel.Inputs, u)
		total += u.Value

		withChange := EstimateTxSize(len(sel.Inputs), 2) * feeRate
		if total >= amount+withChange {
			sel.Fee = withChange
			sel.Change = total - amount - withChange
			if sel.Change < DustLimit {
				sel.Fee += sel.Change
				sel.Change = 0
			}
			return sel, nil
		}

		noChange := EstimateTxSize(len(sel.Inputs), 1) * feeRate
		if total >= amount+noChange {
			sel.Fee = total - amount
			return sel, nil
		}
	}

	return Selection{}, coreerr.WithDetails(coreerr.ErrInsufficientFunds, map[string]string{
		"need": fmt.Sprint(amount),
		"have": fmt.Sprint(total),
	})
}

// SweepFee returns the fee to spend every UTXO to a single output.
func SweepFee(numInputs int, feeRate uint64) uint64 {
	return EstimateTxSize(numInputs, 1) * feeRate
}

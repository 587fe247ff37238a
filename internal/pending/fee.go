package pending

import (
	"math/big"

	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/fee"
)

// FeeSelection is the chosen fee level and the levels the route offers.
// Selected is always a member of Available.
type FeeSelection struct {
	Selected  fee.Level
	Available fee.Set
	// Custom is the per-unit minor price used with fee.Custom.
	Custom *big.Int
}

// NewFeeSelection creates a selection. selected must be in available.
func NewFeeSelection(selected fee.Level, available fee.Set) FeeSelection {
	assert.That("pending", available.Contains(selected), "fee level not offered by route",
		"level", selected, "available", available)
	return FeeSelection{Selected: selected, Available: available}
}

// Select returns a copy with level selected. A level outside Available, or a
// custom level without a positive price, panics.
func (s FeeSelection) Select(level fee.Level, custom *big.Int) FeeSelection {
	assert.That("pending", s.Available.Contains(level), "fee level not offered by route",
		"level", level, "available", s.Available)

	out := FeeSelection{Selected: level, Available: s.Available}
	if level == fee.Custom {
		assert.That("pending", custom != nil && custom.Sign() > 0, "custom fee level requires a positive price")
		out.Custom = new(big.Int).Set(custom)
	}
	return out
}

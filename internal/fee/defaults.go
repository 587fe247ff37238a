package fee

import (
	"math/big"
	"time"

	"github.com/mrz1836/coincore/internal/money"
)

const (
	// GasLimitTransfer is the gas used by a plain ETH transfer.
	GasLimitTransfer uint64 = 21000
	// GasLimitTokenTransfer is the typical gas used by an ERC-20 transfer.
	GasLimitTokenTransfer uint64 = 65000

	// SourceDefault marks a quote taken from the defaults table.
	SourceDefault = "default"

	// MaxQuoteAge is how long a session keeps a quote before a fee level
	// change fetches a new one.
	MaxQuoteAge = 2 * time.Minute

	gwei = 1_000_000_000
)

// Default per-unit prices used when a fee source is unavailable.
const (
	DefaultETHLowGwei      = 30
	DefaultETHRegularGwei  = 50
	DefaultETHPriorityGwei = 100

	DefaultBTCLowSatVB      = 5
	DefaultBTCRegularSatVB  = 10
	DefaultBTCPrioritySatVB = 25

	DefaultXLMBaseFee = 100
)

// Overrides replaces default prices. Zero fields keep the built-in value.
type Overrides struct {
	ETHRegularGwei   int64
	ETHPriorityGwei  int64
	BTCRegularSatVB  int64
	BTCPrioritySatVB int64
	XLMBaseFee       int64
}

// Defaults is the per-currency default quote table.
type Defaults struct {
	quotes map[string]Quote
}

// NewDefaults builds the table with overrides applied.
func NewDefaults(o Overrides) *Defaults {
	ethRegular := pick(o.ETHRegularGwei, DefaultETHRegularGwei)
	ethPriority := pick(o.ETHPriorityGwei, DefaultETHPriorityGwei)
	btcRegular := pick(o.BTCRegularSatVB, DefaultBTCRegularSatVB)
	btcPriority := pick(o.BTCPrioritySatVB, DefaultBTCPrioritySatVB)
	xlmBase := pick(o.XLMBaseFee, DefaultXLMBaseFee)

	return &Defaults{quotes: map[string]Quote{
		money.ETH.Code: {
			Currency:         money.ETH,
			Low:              big.NewInt(DefaultETHLowGwei * gwei),
			Regular:          big.NewInt(ethRegular * gwei),
			Priority:         big.NewInt(ethPriority * gwei),
			GasLimit:         GasLimitTransfer,
			GasLimitContract: GasLimitTokenTransfer,
			Source:           SourceDefault,
		},
		money.BTC.Code: {
			Currency: money.BTC,
			Low:      big.NewInt(DefaultBTCLowSatVB),
			Regular:  big.NewInt(btcRegular),
			Priority: big.NewInt(btcPriority),
			Source:   SourceDefault,
		},
		money.XLM.Code: {
			Currency: money.XLM,
			Low:      big.NewInt(xlmBase),
			Regular:  big.NewInt(xlmBase),
			Priority: big.NewInt(xlmBase),
			Source:   SourceDefault,
		},
	}}
}

// Quote returns a fresh copy of the default quote for a fee currency.
func (d *Defaults) Quote(c money.Currency) (*Quote, bool) {
	q, ok := d.quotes[c.Code]
	if !ok {
		return nil, false
	}
	q.FetchedAt = time.Now()
	return &q, true
}

func pick(override, fallback int64) int64 {
	if override > 0 {
		return override
	}
	return fallback
}

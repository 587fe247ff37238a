package eth

import (
	"context"
	"math/big"
	"time"

	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Low and priority prices are derived from the node's suggestion:
// low = 80%, priority = 120%.
var (
	lowNum      = big.NewInt(4)
	lowDen      = big.NewInt(5)
	priorityNum = big.NewInt(6)
	priorityDen = big.NewInt(5)
)

// FeeSource quotes gas prices from the node.
type FeeSource struct {
	node Node
}

// NewFeeSource creates a fee source over node.
func NewFeeSource(node Node) *FeeSource {
	return &FeeSource{node: node}
}

// CurrentFee implements fee.Source. Only ETH is quoted; tokens pay gas in ETH.
func (s *FeeSource) CurrentFee(ctx context.Context, currency money.Currency) (*fee.Quote, error) {
	if !currency.Equal(money.ETH) {
		return nil, coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{"fee_currency": currency.Code})
	}

	suggested, err := s.node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classifyNodeError("suggesting gas price", err)
	}

	return &fee.Quote{
		Currency:         money.ETH,
		Low:              scale(suggested, lowNum, lowDen),
		Regular:          suggested,
		Priority:         scale(suggested, priorityNum, priorityDen),
		GasLimit:         fee.GasLimitTransfer,
		GasLimitContract: fee.GasLimitTokenTransfer,
		Source:           "node",
		FetchedAt:        time.Now(),
	}, nil
}

func scale(n, num, den *big.Int) *big.Int {
	out := new(big.Int).Mul(n, num)
	return out.Quo(out, den)
}

package chain

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// maxSuggestionDistance bounds how different a typo may be and still get a suggestion.
const maxSuggestionDistance = 2

// registry holds every supported asset keyed by currency code.
//
//nolint:gochecknoglobals // Static asset table
var registry = map[string]Asset{
	money.ETH.Code:  {Currency: money.ETH, Chain: ETH},
	money.USDC.Code: {Currency: money.USDC, Chain: ETH},
	money.BTC.Code:  {Currency: money.BTC, Chain: BTC},
	money.XLM.Code:  {Currency: money.XLM, Chain: XLM},
}

// ErrUnsupportedAsset indicates an asset code that is not in the registry.
var ErrUnsupportedAsset = &coreerr.CoreError{
	Code:     "UNSUPPORTED_ASSET",
	Message:  "unsupported asset",
	ExitCode: coreerr.ExitInput,
}

// LookupAsset returns the asset for a currency code.
func LookupAsset(code string) (Asset, bool) {
	a, ok := registry[strings.ToUpper(strings.TrimSpace(code))]
	return a, ok
}

// AssetFor returns the asset for a currency. Unknown currencies return false.
func AssetFor(c money.Currency) (Asset, bool) {
	return LookupAsset(c.Code)
}

// ParseAsset resolves user input to an asset, suggesting the closest code on typos.
func ParseAsset(code string) (Asset, error) {
	if a, ok := LookupAsset(code); ok {
		return a, nil
	}

	err := coreerr.WithDetails(ErrUnsupportedAsset, map[string]string{"asset": code})
	if suggestion := closestAsset(code); suggestion != "" {
		err = coreerr.WithSuggestion(err, "did you mean '"+strings.ToLower(suggestion)+"'?")
	}
	return Asset{}, err
}

// Assets returns all registered assets sorted by code.
func Assets() []Asset {
	out := make([]Asset, 0, len(registry))
	for _, a := range registry {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency.Code < out[j].Currency.Code })
	return out
}

func closestAsset(code string) string {
	input := strings.ToUpper(strings.TrimSpace(code))
	best := ""
	bestDist := maxSuggestionDistance + 1
	for _, a := range Assets() {
		d := levenshtein.ComputeDistance(input, a.Currency.Code)
		if d < bestDist {
			best, bestDist = a.Currency.Code, d
		}
	}
	return best
}

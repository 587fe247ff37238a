// Package coordinator selects the transaction engine for a source account,
// a target and an asset. It holds no business logic beyond routing.
package coordinator

import (
	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/engine"
	"github.com/mrz1836/coincore/internal/target"
)

// Route is the engine family a (source, target) pair maps to.
type Route int

// Routes.
const (
	RouteUnsupported Route = iota
	RouteOnChain
	RouteNonCustodialToTrading
	RouteTradingToNonCustodial
	RouteTradingToTrading
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteOnChain:
		return "on-chain"
	case RouteNonCustodialToTrading:
		return "noncustodial-to-trading"
	case RouteTradingToNonCustodial:
		return "trading-to-noncustodial"
	case RouteTradingToTrading:
		return "trading-to-trading"
	default:
		return "unsupported"
	}
}

// Config holds the engine configuration per chain for non-custodial
// sources, and the configuration of trading sources.
type Config struct {
	Chains  map[chain.ID]engine.Config
	Trading engine.Config
}

// Coordinator maps transfers to engines.
type Coordinator struct {
	chains  map[chain.ID]engine.Config
	trading engine.Config
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	chains := make(map[chain.ID]engine.Config, len(cfg.Chains))
	for id, c := range cfg.Chains {
		chains[id] = c
	}
	return &Coordinator{chains: chains, trading: cfg.Trading}
}

// Classify returns the route of a transfer, or RouteUnsupported.
func (c *Coordinator) Classify(src account.Account, tgt target.Target, asset chain.Asset) Route {
	if tgt == nil || !src.Asset.Currency.Equal(asset.Currency) || !tgt.Currency().Equal(asset.Currency) {
		return RouteUnsupported
	}
	if _, ok := chain.AssetFor(asset.Currency); !ok {
		return RouteUnsupported
	}

	switch src.Type {
	case account.NonCustodial:
		if _, ok := c.chains[asset.Chain]; !ok {
			return RouteUnsupported
		}
		if tgt.Kind() == target.KindCustodial {
			if c.trading.Orders == nil {
				return RouteUnsupported
			}
			return RouteNonCustodialToTrading
		}
		return RouteOnChain
	case account.Trading:
		switch tgt.Kind() {
		case target.KindCustodial:
			if c.trading.Orders == nil {
				return RouteUnsupported
			}
			return RouteTradingToTrading
		case target.KindAddress, target.KindDomain:
			if c.trading.Withdrawals == nil {
				return RouteUnsupported
			}
			return RouteTradingToNonCustodial
		}
	}
	return RouteUnsupported
}

// Supports reports whether Select would return an engine.
func (c *Coordinator) Supports(src account.Account, tgt target.Target, asset chain.Asset) bool {
	return c.Classify(src, tgt, asset) != RouteUnsupported
}

// Select returns the engine for the transfer. An unsupported combination
// is a caller bug and panics; check Supports first for user input.
func (c *Coordinator) Select(src account.Account, tgt target.Target, asset chain.Asset) engine.Engine {
	route := c.Classify(src, tgt, asset)

	var e engine.Engine
	switch route {
	case RouteOnChain:
		e = engine.NewOnChain(src, tgt, c.chains[asset.Chain])
	case RouteNonCustodialToTrading:
		cfg := c.chains[asset.Chain]
		cfg.Orders = c.trading.Orders
		e = engine.NewNonCustodialToTrading(src, tgt, cfg)
	case RouteTradingToNonCustodial:
		e = engine.NewTradingToNonCustodial(src, tgt, c.trading)
	case RouteTradingToTrading:
		e = engine.NewTradingToTrading(src, tgt, c.trading)
	default:
		var label string
		if tgt != nil {
			label = tgt.Label()
		}
		assert.Never("coordinator", "unsupported transfer",
			"source", src.ID, "source_type", src.Type, "target", label, "asset", asset)
	}
	e.AssertInputsValid()
	return e
}

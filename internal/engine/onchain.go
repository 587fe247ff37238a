package engine

import (
	"context"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/pending"
	"github.com/mrz1836/coincore/internal/signing"
	"github.com/mrz1836/coincore/internal/target"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// leg is an on-chain engine that can also send to a destination chosen at
// execute time, such as the deposit address of a trading order.
type leg interface {
	Engine
	revalidate(ctx context.Context, tx pending.Transaction) (pending.Transaction, error)
	unlock(ctx context.Context, secondPassword string) (*signing.KeyPair, error)
	sendWith(ctx context.Context, tx pending.Transaction, dest target.Destination, kp *signing.KeyPair) (*signing.Published, error)
}

// onChain is the flow shared by engines that sign and broadcast locally.
type onChain struct {
	*base
	asset chain.Asset

	// createAccount is set by ledger routes when the destination is unfunded.
	createAccount bool
}

// NewOnChain returns the engine for a send between non-custodial accounts,
// specialized for the ledger model of the source asset.
func NewOnChain(src account.Account, tgt target.Target, cfg Config) Engine {
	return newLeg(src, tgt, cfg, nil)
}

func newLeg(src account.Account, tgt target.Target, cfg Config, resolve func(context.Context) (target.Destination, error)) leg {
	switch src.Asset.Route() {
	case chain.RouteAccount:
		e := &AccountEngine{onChain: newOnChain("account", src, tgt, cfg, fee.Regular, accountLevels)}
		e.hooks, e.resolve = e, resolve
		return e
	case chain.RouteUTXO:
		e := &UTXOEngine{onChain: newOnChain("utxo", src, tgt, cfg, fee.Regular, utxoLevels)}
		e.hooks, e.resolve = e, resolve
		return e
	case chain.RouteLedgerSequence:
		e := &LedgerEngine{onChain: newOnChain("ledger", src, tgt, cfg, fee.None, ledgerLevels)}
		e.hooks, e.resolve = e, resolve
		return e
	default:
		assert.Never("engine", "no on-chain engine for route", "asset", src.Asset, "route", src.Asset.Route())
		return nil
	}
}

func newOnChain(route string, src account.Account, tgt target.Target, cfg Config, def fee.Level, levels fee.Set) *onChain {
	return &onChain{
		base:  newBase(route, src, tgt, cfg, src.Asset.FeeCurrency(), def, levels),
		asset: src.Asset,
	}
}

// AssertInputsValid implements Engine.
func (e *onChain) AssertInputsValid() {
	e.assertCommon()
	component := "engine." + e.route
	assert.That(component, !e.source.IsCustodial(), "source must be non-custodial", "account", e.source.ID)
	assert.That(component, e.source.Address != "", "source address is required", "account", e.source.ID)
	assert.NotNil(component, e.fees, "fee source is required")
	assert.NotNil(component, e.cfg.Keys, "key provider is required")
	assert.NotNil(component, e.cfg.Pipeline.Builder, "transaction builder is required")
	assert.NotNil(component, e.cfg.Pipeline.Signer, "signer is required")
	if e.target.Kind() == target.KindBitPayInvoice {
		assert.NotNil(component, e.cfg.Invoices, "invoice broadcaster is required")
	} else {
		assert.NotNil(component, e.cfg.Pipeline.Broadcaster, "broadcaster is required")
	}
	if e.resolve == nil {
		assert.That(component, e.target.AccountType() == account.NonCustodial, "target must be non-custodial",
			"target", e.target.Label())
	}
}

// RequiresSecondPassword implements Engine. Local signing always unlocks keys.
func (e *onChain) RequiresSecondPassword() bool { return true }

// Execute implements Engine.
func (e *onChain) Execute(ctx context.Context, tx pending.Transaction, secondPassword string) (Result, error) {
	if err := checkExecutable(tx); err != nil {
		return Result{}, err
	}
	defer e.release(tx)

	tx, err := e.revalidate(balance.WithFreshRead(ctx), tx)
	if err != nil {
		return Result{}, err
	}
	dest, err := e.destination(ctx)
	if err != nil {
		return Result{}, err
	}

	kp, err := e.unlock(ctx, secondPassword)
	if signing.IsCancelled(err) {
		return cancelled(tx.Amount), nil
	}
	if err != nil {
		return Result{}, err
	}

	pub, err := e.sendWith(ctx, tx, dest, kp)
	if signing.IsCancelled(err) {
		return cancelled(tx.Amount), nil
	}
	if err != nil {
		return Result{}, err
	}
	e.debug("%s sent %s to %s: %s", e.route, tx.Amount, dest.Address, pub.Hash)
	return Result{Kind: Hashed, TxHash: pub.Hash, Amount: tx.Amount}, nil
}

// unlock fetches the signing key of the source chain.
func (e *onChain) unlock(ctx context.Context, secondPassword string) (*signing.KeyPair, error) {
	kp, err := e.cfg.Keys.KeyPair(ctx, e.asset.Chain, secondPassword)
	if err != nil {
		return nil, signing.Classify(err)
	}
	return kp, nil
}

// sendWith builds, signs and submits tx to dest. kp is always zeroed.
func (e *onChain) sendWith(ctx context.Context, tx pending.Transaction, dest target.Destination, kp *signing.KeyPair) (*signing.Published, error) {
	quote, err := e.feeQuote(ctx)
	if err != nil {
		kp.Zero()
		return nil, err
	}
	memo := tx.Memo
	if memo == "" {
		memo = dest.Memo
	}

	e.mu.Lock()
	createAccount := e.createAccount
	e.mu.Unlock()

	req := signing.TransferRequest{
		Asset:         e.asset,
		From:          e.source.Address,
		To:            dest.Address,
		Memo:          memo,
		Amount:        tx.Amount,
		FeeRate:       quote.PerUnit(tx.FeeSelection.Selected, tx.FeeSelection.Custom),
		Fee:           tx.NetworkFee,
		CreateAccount: createAccount,
	}
	cand, err := e.cfg.Pipeline.Builder.Build(ctx, req)
	if err != nil {
		kp.Zero()
		return nil, signing.Classify(coreerr.Wrap(err, "building %s transfer", e.asset))
	}

	broadcaster := e.cfg.Pipeline.Broadcaster
	if inv, ok := e.target.(target.BitPayInvoice); ok {
		broadcaster = e.cfg.Invoices(inv.InvoiceID, inv.Asset)
	}
	return signing.Send(ctx, e.cfg.Pipeline.Signer, broadcaster, cand, kp)
}

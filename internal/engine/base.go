package engine

import (
	"context"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/assert"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	"github.com/mrz1836/coincore/internal/target"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// hooks are the route-specific steps the shared engine flow calls into.
type hooks interface {
	// refresh recomputes available balance, fees and minimum for tx.
	refresh(ctx context.Context, tx pending.Transaction) (pending.Transaction, error)
	// amountState runs the amount checks in route order.
	amountState(tx pending.Transaction) pending.ValidationState
	// rules runs the route rules after the amount checks pass.
	rules(ctx context.Context, tx pending.Transaction) (pending.ValidationState, error)
}

// base carries the state and flow shared by every engine.
type base struct {
	route  string
	source account.Account
	target target.Target
	cfg    Config
	fees   *fee.SessionCache
	hooks  hooks

	feeCurrency  money.Currency
	defaultLevel fee.Level
	levels       fee.Set

	// resolve overrides target resolution, used when the destination comes
	// from a backend rather than the target itself.
	resolve func(ctx context.Context) (target.Destination, error)

	mu    sync.Mutex
	dest  *target.Destination
	rates map[string]money.Pair
}

func newBase(route string, src account.Account, tgt target.Target, cfg Config, feeCurrency money.Currency, def fee.Level, levels fee.Set) *base {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var fees *fee.SessionCache
	if cfg.Fees != nil {
		fees = fee.NewSessionCache(cfg.Fees, cfg.Metrics)
	}
	return &base{
		route:        route,
		source:       src,
		target:       tgt,
		cfg:          cfg,
		fees:         fees,
		feeCurrency:  feeCurrency,
		defaultLevel: def,
		levels:       levels,
		rates:        make(map[string]money.Pair),
	}
}

// Source implements Engine.
func (b *base) Source() account.Account { return b.source }

// Target implements Engine.
func (b *base) Target() target.Target { return b.target }

// Route implements Engine.
func (b *base) Route() string { return b.route }

// assertCommon checks what every engine needs from its inputs.
func (b *base) assertCommon() {
	component := "engine." + b.route
	assert.That(component, b.source.Validate() == nil, "invalid source account", "account", b.source.ID)
	assert.NotNil(component, b.target, "target is required")
	assert.That(component, b.target.Currency().Equal(b.source.Currency()), "target currency differs from source",
		"source", b.source.Currency(), "target", b.target.Currency())
	assert.NotNil(component, b.cfg.Balances, "balance provider is required")
	assert.NotNil(component, b.hooks, "route hooks are not wired")
}

// InitializeTransaction implements Engine.
func (b *base) InitializeTransaction(context.Context) (pending.Transaction, error) {
	if b.cfg.Fiat.Code == "" || !b.cfg.Fiat.IsFiat() {
		return pending.Transaction{}, coreerr.WithSuggestion(
			coreerr.Wrap(coreerr.ErrConfigInvalid, "no display currency configured"),
			"Set fiat in the config file or COINCORE_FIAT",
		)
	}
	selection := pending.NewFeeSelection(b.defaultLevel, b.levels)
	return pending.New(b.source.Currency(), b.feeCurrency, b.cfg.Fiat, selection), nil
}

// Update implements Engine.
func (b *base) Update(ctx context.Context, amount money.Value, tx pending.Transaction) (pending.Transaction, error) {
	if err := checkEditable(tx, "update"); err != nil {
		return tx, err
	}
	if fixed, err := b.fixedAmount(ctx); err != nil {
		return tx, err
	} else if fixed != nil {
		amount = *fixed
	}
	return b.hooks.refresh(ctx, tx.WithAmount(amount))
}

// UpdateFeeLevel implements Engine.
func (b *base) UpdateFeeLevel(ctx context.Context, tx pending.Transaction, level fee.Level, custom *big.Int) (pending.Transaction, error) {
	selection := tx.FeeSelection.Select(level, custom)
	if err := checkEditable(tx, "update fee level"); err != nil {
		return tx, err
	}
	if b.fees != nil && b.fees.Stale(b.feeCurrency, b.cfg.Now(), fee.MaxQuoteAge) {
		b.debug("%s fee quote is stale, refetching for %s", b.feeCurrency.Code, level)
		b.fees.Invalidate()
	}
	return b.hooks.refresh(ctx, tx.WithFeeSelection(selection))
}

// ValidateAmount implements Engine.
func (b *base) ValidateAmount(_ context.Context, tx pending.Transaction) (pending.Transaction, error) {
	if err := checkEditable(tx, "validate"); err != nil {
		return tx, err
	}
	return b.validated(tx, b.hooks.amountState(tx)), nil
}

// ValidateAll implements Engine.
func (b *base) ValidateAll(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	checked, err := b.ValidateAmount(ctx, tx)
	if err != nil || !checked.Validation.IsValid() {
		return checked, err
	}
	state, err := b.allRules(ctx, checked)
	if err != nil {
		return tx, err
	}
	return b.validated(checked, state), nil
}

// allRules runs the invoice deadline check and then the route rules.
func (b *base) allRules(ctx context.Context, tx pending.Transaction) (pending.ValidationState, error) {
	if b.target.Kind() == target.KindBitPayInvoice {
		dest, err := b.destination(ctx)
		if err != nil {
			return pending.Uninitialized, err
		}
		if dest.Expired(b.cfg.Now()) {
			return pending.InvoiceExpired, nil
		}
	}
	return b.hooks.rules(ctx, tx)
}

// revalidate refreshes tx against fresh balances and checks it again
// without phase restrictions. It runs at execute time.
func (b *base) revalidate(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	fresh, err := b.hooks.refresh(ctx, tx)
	if err != nil {
		return tx, err
	}
	state := b.hooks.amountState(fresh)
	if state.IsValid() {
		if state, err = b.allRules(ctx, fresh); err != nil {
			return tx, err
		}
	}
	if !state.IsValid() {
		b.cfg.Metrics.RecordValidationFailure(state.String())
		return fresh, coreerr.Wrap(state.Err(), "revalidation before execute")
	}
	return fresh, nil
}

func (b *base) validated(tx pending.Transaction, state pending.ValidationState) pending.Transaction {
	if !state.IsValid() {
		b.cfg.Metrics.RecordValidationFailure(state.String())
	}
	return tx.WithValidation(state)
}

// BuildConfirmations implements Engine.
func (b *base) BuildConfirmations(ctx context.Context, tx pending.Transaction) (pending.Transaction, error) {
	if err := checkEditable(tx, "build confirmations"); err != nil {
		return tx, err
	}
	if tx.Phase < pending.AmountEntered {
		return tx, coreerr.WithDetails(coreerr.ErrInvalidPhase, map[string]string{
			"operation": "build confirmations",
			"phase":     tx.Phase.String(),
		})
	}

	var dest *target.Destination
	if b.target.AccountType() == account.NonCustodial {
		d, err := b.destination(ctx)
		if err != nil {
			return tx, err
		}
		dest = &d
	}
	return tx.WithConfirmations(b.confirmationLines(ctx, tx, dest)), nil
}

// updateMemo sets the memo sent with the transfer.
func (b *base) updateMemo(tx pending.Transaction, memo string) (pending.Transaction, error) {
	if err := checkEditable(tx, "update memo"); err != nil {
		return tx, err
	}
	return tx.WithMemo(memo), nil
}

// PostExecute implements Engine.
func (b *base) PostExecute(_ context.Context, result Result) error {
	if result.Kind != Hashed {
		return nil
	}
	if b.cfg.Dirty != nil {
		b.cfg.Dirty.MarkDirty(b.source)
	}
	if b.cfg.Persist != nil {
		if err := b.cfg.Persist(); err != nil {
			return coreerr.Wrap(err, "persisting caches after %s", result.TxHash)
		}
	}
	return nil
}

// Close implements Engine.
func (b *base) Close(tx pending.Transaction) {
	b.release(tx)
}

// acquire takes the source account lock for tx. It reports false when
// another transaction holds it.
func (b *base) acquire(tx pending.Transaction) bool {
	if b.cfg.Locks == nil {
		return true
	}
	if b.cfg.Locks.Acquire(b.source.ID, tx.ID) {
		return true
	}
	if holder, ok := b.cfg.Locks.Holder(b.source.ID); ok {
		b.debug("%s is held by transaction %s", b.source.DisplayName(), holder)
	}
	return false
}

func (b *base) release(tx pending.Transaction) {
	if b.cfg.Locks != nil {
		b.cfg.Locks.Release(b.source.ID, tx.ID)
	}
}

// destination resolves the target once per engine. Failures are not cached.
func (b *base) destination(ctx context.Context) (target.Destination, error) {
	b.mu.Lock()
	if b.dest != nil {
		d := *b.dest
		b.mu.Unlock()
		return d, nil
	}
	b.mu.Unlock()

	var (
		d   target.Destination
		err error
	)
	if b.resolve != nil {
		d, err = b.resolve(ctx)
	} else {
		d, err = target.Resolve(ctx, b.target, b.cfg.Resolvers)
	}
	if err != nil {
		return target.Destination{}, err
	}

	b.mu.Lock()
	b.dest = &d
	b.mu.Unlock()
	return d, nil
}

// fixedAmount returns the amount fixed by the target, if any.
func (b *base) fixedAmount(ctx context.Context) (*money.Value, error) {
	if b.target.Kind() != target.KindBitPayInvoice {
		return nil, nil
	}
	dest, err := b.destination(ctx)
	if err != nil {
		return nil, err
	}
	return dest.Amount, nil
}

// feeQuote returns the session-cached quote of the fee currency.
func (b *base) feeQuote(ctx context.Context) (*fee.Quote, error) {
	assert.NotNil("engine."+b.route, b.fees, "fee source is required")
	q, err := b.fees.CurrentFee(ctx, b.feeCurrency)
	if err != nil {
		return nil, coreerr.Wrap(err, "fetching %s fee", b.feeCurrency.Code)
	}
	return q, nil
}

// spendable fetches the source balance.
func (b *base) spendable(ctx context.Context) (money.Value, error) {
	v, err := b.cfg.Balances.SpendableBalance(ctx, b.source)
	if err != nil {
		return money.Value{}, coreerr.Wrap(err, "fetching %s balance", b.source.DisplayName())
	}
	return v, nil
}

// commitContext checks for cancellation right before a commit point and
// returns a context detached from the caller for the commit itself.
func commitContext(ctx context.Context) (context.Context, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	return context.WithoutCancel(ctx), true
}

func checkEditable(tx pending.Transaction, op string) error {
	if tx.Phase.Editable() {
		return nil
	}
	return coreerr.WithDetails(coreerr.ErrInvalidPhase, map[string]string{
		"operation": op,
		"phase":     tx.Phase.String(),
	})
}

func checkExecutable(tx pending.Transaction) error {
	if tx.Phase == pending.Validated || tx.Phase == pending.Executing {
		return nil
	}
	return coreerr.WithDetails(coreerr.ErrInvalidPhase, map[string]string{
		"operation": "execute",
		"phase":     tx.Phase.String(),
	})
}

// standardAmountState checks positive, then available, then minimum.
func standardAmountState(tx pending.Transaction) pending.ValidationState {
	switch {
	case !tx.Amount.IsPositive():
		return pending.InvalidAmount
	case tx.Amount.GreaterThan(tx.Available):
		return pending.InsufficientFunds
	case tx.Amount.LessThan(tx.MinimumLimit):
		return pending.BelowMinimumLimit
	default:
		return pending.CanExecute
	}
}

// fiatRates returns display rates for currencies, fetching missing ones
// concurrently. Rates that cannot be fetched are left out.
func (b *base) fiatRates(ctx context.Context, currencies ...money.Currency) map[string]money.Pair {
	out := make(map[string]money.Pair, len(currencies))
	if b.cfg.Rates == nil {
		return out
	}

	var missing []money.Currency
	b.mu.Lock()
	for _, c := range currencies {
		if p, ok := b.rates[c.Code]; ok {
			out[c.Code] = p
		} else {
			missing = append(missing, c)
		}
	}
	b.mu.Unlock()

	var g errgroup.Group
	for _, c := range missing {
		g.Go(func() error {
			p, err := b.cfg.Rates.Rate(ctx, c, b.cfg.Fiat)
			if err != nil {
				b.debug("no %s/%s rate: %v", c.Code, b.cfg.Fiat.Code, err)
				return nil
			}
			b.mu.Lock()
			b.rates[c.Code] = p
			b.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	b.mu.Lock()
	for _, c := range missing {
		if p, ok := b.rates[c.Code]; ok {
			out[c.Code] = p
		}
	}
	b.mu.Unlock()
	return out
}

func (b *base) debug(format string, args ...any) {
	if b.cfg.Logger != nil {
		b.cfg.Logger.Debug(format, args...)
	}
}

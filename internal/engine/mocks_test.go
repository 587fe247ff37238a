package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/custodial"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/pending"
	"github.com/mrz1836/coincore/internal/signing"
	"github.com/mrz1836/coincore/internal/target"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

const gwei = 1_000_000_000

func mustAsset(t *testing.T, code string) chain.Asset {
	t.Helper()
	a, ok := chain.LookupAsset(code)
	require.True(t, ok, code)
	return a
}

func walletAccount(t *testing.T, code, address string) account.Account {
	t.Helper()
	return account.Account{ID: code + "-wallet", Label: "My " + code, Asset: mustAsset(t, code), Type: account.NonCustodial, Address: address}
}

func tradingAccount(t *testing.T, code string) account.Account {
	t.Helper()
	return account.Account{ID: code + "-trading", Label: code + " Trading", Asset: mustAsset(t, code), Type: account.Trading}
}

// fakeBalances is a mutable balance.Provider with a gas balance.
type fakeBalances struct {
	mu        sync.Mutex
	balances  map[string]money.Value
	gas       money.Value
	pendingOp bool
	err       error
	calls     int
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{balances: make(map[string]money.Value), gas: money.Zero(money.ETH)}
}

func (f *fakeBalances) set(acct account.Account, v money.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[acct.ID] = v
}

func (f *fakeBalances) setGas(v money.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gas = v
}

func (f *fakeBalances) setPending(busy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingOp = busy
}

func (f *fakeBalances) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBalances) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBalances) SpendableBalance(_ context.Context, acct account.Account) (money.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return money.Value{}, f.err
	}
	if v, ok := f.balances[acct.ID]; ok {
		return v, nil
	}
	return money.Zero(acct.Currency()), nil
}

func (f *fakeBalances) HasPendingOperation(context.Context, account.Account) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingOp, nil
}

func (f *fakeBalances) FeeBalance(context.Context, account.Account) (money.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gas, nil
}

func fixedFees(q *fee.Quote) fee.Source {
	return fee.SourceFunc(func(context.Context, money.Currency) (*fee.Quote, error) {
		return q, nil
	})
}

func ethQuote() *fee.Quote {
	return &fee.Quote{
		Currency:         money.ETH,
		Regular:          big.NewInt(100 * gwei),
		Priority:         big.NewInt(150 * gwei),
		GasLimit:         20000,
		GasLimitContract: 65000,
		Source:           "test",
	}
}

// fakeReserves reports reserves per address; unknown addresses are unfunded.
type fakeReserves struct {
	base   money.Value
	funded map[string]int

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeReserves) AccountReserve(_ context.Context, address string) (balance.Reserve, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[address]++
	subentries, ok := f.funded[address]
	return balance.Reserve{Funded: ok, BaseReserve: f.base, Subentries: subentries}, nil
}

func (f *fakeReserves) callCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

type fakeUnits struct {
	transfer, sweep uint64
}

func (f fakeUnits) TransferUnits(context.Context, account.Account, money.Value, *big.Int) (uint64, error) {
	return f.transfer, nil
}

func (f fakeUnits) SweepUnits(context.Context, account.Account) (uint64, error) {
	return f.sweep, nil
}

type fakeCandidate struct {
	req signing.TransferRequest
}

func (c fakeCandidate) ChainID() chain.ID { return c.req.Asset.Chain }

// fakePipeline records every request and counts signing and broadcasting.
type fakePipeline struct {
	mu         sync.Mutex
	requests   []signing.TransferRequest
	signed     int
	broadcasts int
	submitErr  error
	// gate, when set, blocks Submit until closed.
	gate chan struct{}
}

func (p *fakePipeline) Build(_ context.Context, req signing.TransferRequest) (signing.Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return fakeCandidate{req: req}, nil
}

func (p *fakePipeline) Sign(_ context.Context, c signing.Candidate, kp *signing.KeyPair) (*signing.Signed, error) {
	if len(kp.Secret) == 0 {
		return nil, coreerr.ErrSigningFailed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signed++
	return &signing.Signed{Chain: c.ChainID(), Hash: fmt.Sprintf("0xhash%d", p.signed), Raw: []byte{0x01}}, nil
}

func (p *fakePipeline) Submit(_ context.Context, s *signing.Signed) (*signing.Published, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts++
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	return &signing.Published{Chain: s.Chain, Hash: s.Hash, SubmittedAt: time.Now()}, nil
}

func (p *fakePipeline) pipeline() signing.Pipeline {
	return signing.Pipeline{Builder: p, Signer: p, Broadcaster: p}
}

func (p *fakePipeline) stats() (requests []signing.TransferRequest, signed, broadcasts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]signing.TransferRequest(nil), p.requests...), p.signed, p.broadcasts
}

// fakeKeys hands out a key unless the password is wrong.
type fakeKeys struct {
	mu       sync.Mutex
	password string
	cancel   bool
	calls    int
}

func (k *fakeKeys) KeyPair(_ context.Context, chainID chain.ID, secondPassword string) (*signing.KeyPair, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls++
	if k.cancel {
		return nil, coreerr.ErrCancelled
	}
	if secondPassword != k.password {
		return nil, coreerr.ErrDecryptionFailed
	}
	return signing.NewKeyPair(chainID, "acct", []byte{0x01, 0x02, 0x03}, nil), nil
}

func (k *fakeKeys) callCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls
}

type fakeRates map[string]decimal.Decimal

func (r fakeRates) Rate(_ context.Context, base, quote money.Currency) (money.Pair, error) {
	rate, ok := r[base.Code]
	if !ok {
		return money.Pair{}, coreerr.ErrNotFound
	}
	return money.NewPair(base, quote, rate), nil
}

// fakeOrders is an order and withdrawal backend.
type fakeOrders struct {
	mu          sync.Mutex
	created     []custodial.OrderRequest
	updates     map[string]bool
	transfers   []string
	fees        custodial.WithdrawalFees
	createErr   error
	updateErr   error
	feeRequests int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{updates: make(map[string]bool)}
}

func (o *fakeOrders) FetchQuote(_ context.Context, direction custodial.Direction, volume money.Value, output money.Currency) (*custodial.Quote, error) {
	return &custodial.Quote{
		ID:         "quote-" + string(direction),
		Pair:       money.NewPair(volume.Currency(), output, decimal.NewFromInt(1)),
		NetworkFee: money.Zero(output),
	}, nil
}

func (o *fakeOrders) CreateOrder(_ context.Context, req custodial.OrderRequest) (*custodial.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.createErr != nil {
		return nil, o.createErr
	}
	o.created = append(o.created, req)
	return &custodial.Order{
		ID:             fmt.Sprintf("order-%d", len(o.created)),
		Direction:      req.Direction,
		State:          custodial.StatePendingDeposit,
		DepositAddress: "GDEPOSIT",
		DepositMemo:    "4242",
	}, nil
}

func (o *fakeOrders) UpdateOrder(_ context.Context, id string, success bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates[id] = success
	return o.updateErr
}

func (o *fakeOrders) ReceiveAddress(context.Context, money.Currency) (string, string, error) {
	return "GRECEIVE", "7", nil
}

func (o *fakeOrders) WithdrawalFees(context.Context, money.Currency) (custodial.WithdrawalFees, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.feeRequests++
	return o.fees, nil
}

func (o *fakeOrders) Transfer(_ context.Context, amount money.Value, destination, memo string) (*custodial.Withdrawal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transfers = append(o.transfers, destination+":"+memo)
	return &custodial.Withdrawal{ID: fmt.Sprintf("wd-%d", len(o.transfers)), Amount: amount}, nil
}

func (o *fakeOrders) snapshot() (created []custodial.OrderRequest, updates map[string]bool, transfers []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	updates = make(map[string]bool, len(o.updates))
	for k, v := range o.updates {
		updates[k] = v
	}
	return append([]custodial.OrderRequest(nil), o.created...), updates, append([]string(nil), o.transfers...)
}

type fakeInvoices struct {
	dest target.Destination
}

func (f fakeInvoices) ResolveInvoice(context.Context, string, money.Currency) (target.Destination, error) {
	return f.dest, nil
}

// recordingLogger keeps every message.
type recordingLogger struct {
	mu     sync.Mutex
	debugs []string
	errors []string
}

func (l *recordingLogger) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) errorLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

type dirtyMarks struct {
	mu  sync.Mutex
	ids []string
}

func (d *dirtyMarks) MarkDirty(acct account.Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, acct.ID)
}

func (d *dirtyMarks) marked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

// staticPrompt answers the second password prompt.
type staticPrompt struct {
	mu       sync.Mutex
	password string
	cancel   bool
	asked    int
}

func (p *staticPrompt) RequestSecondPassword(context.Context) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked++
	if p.cancel {
		return "", false, nil
	}
	return p.password, true, nil
}

// ethFixture wires an ETH wallet with 1.5 ETH and a 100 gwei × 20000 gas quote,
// which makes a 0.002 ETH regular fee.
type ethFixture struct {
	src      account.Account
	tgt      target.Address
	balances *fakeBalances
	pipe     *fakePipeline
	keys     *fakeKeys
	dirty    *dirtyMarks
	logger   *recordingLogger
	cfg      Config
}

func newETHFixture(t *testing.T) *ethFixture {
	t.Helper()
	f := &ethFixture{
		src:      walletAccount(t, "ETH", "0x1111111111111111111111111111111111111111"),
		tgt:      target.Address{Asset: money.ETH, Address: "0x2222222222222222222222222222222222222222"},
		balances: newFakeBalances(),
		pipe:     &fakePipeline{},
		keys:     &fakeKeys{password: "hunter2"},
		dirty:    &dirtyMarks{},
		logger:   &recordingLogger{},
	}
	f.balances.set(f.src, money.MustMajor("1.5", money.ETH))
	f.cfg = Config{
		Balances: f.balances,
		Fees:     fixedFees(ethQuote()),
		Rates:    fakeRates{"ETH": decimal.NewFromInt(2000)},
		Locks:    balance.NewLocks(),
		Pipeline: f.pipe.pipeline(),
		Keys:     f.keys,
		Dirty:    f.dirty,
		Fiat:     money.USD,
		Logger:   f.logger,
	}
	return f
}

// enter initializes tx on e and sets amount.
func enter(t *testing.T, e Engine, amount money.Value) pending.Transaction {
	t.Helper()
	tx, err := e.InitializeTransaction(context.Background())
	require.NoError(t, err)
	tx, err = e.Update(context.Background(), amount, tx)
	require.NoError(t, err)
	return tx
}

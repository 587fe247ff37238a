package cli

import (
	"context"
	"math/big"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/bitpay"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/chain/btc"
	"github.com/mrz1836/coincore/internal/chain/eth"
	"github.com/mrz1836/coincore/internal/chain/xlm"
	"github.com/mrz1836/coincore/internal/config"
	"github.com/mrz1836/coincore/internal/coordinator"
	"github.com/mrz1836/coincore/internal/custodial"
	"github.com/mrz1836/coincore/internal/engine"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/keystore"
	"github.com/mrz1836/coincore/internal/metrics"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/signing"
	"github.com/mrz1836/coincore/internal/target"
	"github.com/mrz1836/coincore/internal/transport"
)

// balanceCacheFile is the persisted balance cache under the home directory.
const balanceCacheFile = "balances.json"

// backends holds the wired collaborators for one command invocation.
type backends struct {
	coordinator *coordinator.Coordinator
	btcParams   *chaincfg.Params

	cache   *balance.Cache
	storage *balance.FileStorage
	eth     *ethclient.Client
	log     *config.Logger
}

// Close saves the balance cache and releases network connections.
func (b *backends) Close() {
	if err := b.persist(); err != nil {
		b.log.Error("saving balance cache: %v", err)
	}
	if b.eth != nil {
		b.eth.Close()
	}
}

// persist saves the balance cache after a transfer.
func (b *backends) persist() error {
	return b.storage.Save(b.cache)
}

// openBackends is replaced in tests.
//
//nolint:gochecknoglobals // Test seam
var openBackends = buildBackends

// buildBackends wires every enabled chain and the trading backend from cfg.
//
//nolint:gocognit,gocyclo // Wiring is a flat sequence of optional collaborators
func buildBackends(ctx context.Context, c *config.Config, log *config.Logger, m *metrics.Metrics) (*backends, error) {
	b := &backends{
		storage: balance.NewFileStorage(filepath.Join(c.GetHome(), balanceCacheFile)),
		log:     log,
	}

	cache, err := b.storage.Load()
	if err != nil {
		log.Debug("balance cache unreadable, starting empty: %v", err)
		cache = balance.NewCache()
	}
	b.cache = cache

	limiter := chain.DefaultRateLimiter()
	opts := func(headers map[string]string) *transport.Options {
		return &transport.Options{
			RateLimiter: limiter,
			Headers:     headers,
			Observer:    m,
			Logger:      log,
		}
	}

	defaults := fee.NewDefaults(fee.Overrides{
		ETHRegularGwei:   c.Fees.ETHRegularGwei,
		ETHPriorityGwei:  c.Fees.ETHPriorityGwei,
		BTCRegularSatVB:  c.Fees.BTCRegularSatVB,
		BTCPrioritySatVB: c.Fees.BTCPrioritySatVB,
		XLMBaseFee:       c.Fees.XLMBaseFee,
	})
	locks := balance.NewLocks()

	keys := &lazyKeys{path: c.GetKeystorePath()}

	// Shared by every route.
	common := engine.Config{
		Locks:   locks,
		Keys:    keys,
		Fiat:    c.GetFiat(),
		Logger:  log,
		Metrics: m,
		Persist: b.persist,
	}

	var trading engine.Config
	if c.Custodial.URL != "" {
		var headers map[string]string
		if c.Custodial.Token != "" {
			headers = map[string]string{"Authorization": "Bearer " + c.Custodial.Token}
		}
		custodialOpts := opts(headers)
		custodialOpts.HTTPClient = &http.Client{Timeout: c.GetCustodialTimeout()}
		hc, err := transport.New("custodial", c.Custodial.URL, custodialOpts)
		if err != nil {
			return nil, err
		}
		if c.Custodial.RatePerSecond > 0 {
			limiter.SetServiceRate("custodial", c.Custodial.RatePerSecond)
		}
		client := custodial.NewClient(hc)

		common.Rates = client
		common.Resolvers.Domains = client
		common.Orders = client

		trading = common
		trading.Balances = custodial.NewBalanceProvider(client)
		trading.Withdrawals = client
	}

	if c.BitPay.URL != "" {
		hc, err := transport.New("bitpay", c.BitPay.URL+"/i", opts(bitpay.ProtocolHeaders()))
		if err != nil {
			return nil, err
		}
		client := bitpay.NewClient(hc)
		common.Resolvers.Invoices = client
		common.Invoices = func(invoiceID string, currency money.Currency) signing.Broadcaster {
			return bitpay.NewBroadcaster(client, invoiceID, currency)
		}
	}

	chains := make(map[chain.ID]engine.Config)
	cached := func(inner balance.Provider) *balance.CachedProvider {
		return balance.NewCachedProvider(inner, b.cache, 0, m)
	}
	fallback := func(src fee.Source) fee.Source {
		return fee.NewFallback(src, defaults, log, m)
	}

	if c.Networks.ETH.Enabled {
		node, err := eth.Dial(ctx, c.GetETHRPC())
		if err != nil {
			return nil, err
		}
		b.eth = node

		ec := common
		provider := cached(eth.NewBalanceProvider(node))
		ec.Balances = provider
		ec.Dirty = provider
		ec.Fees = fallback(eth.NewFeeSource(node))
		ec.Pipeline = eth.NewPipeline(node, big.NewInt(c.Networks.ETH.ChainID))
		chains[chain.ETH] = ec
	}

	b.btcParams = &chaincfg.MainNetParams
	if c.Networks.BTC.Enabled {
		params, err := btc.Params(c.Networks.BTC.Network)
		if err != nil {
			return nil, err
		}
		b.btcParams = params

		hc, err := transport.New("esplora", c.GetBTCAPI(), opts(nil))
		if err != nil {
			return nil, err
		}
		client := btc.NewClient(hc)
		inner := btc.NewBalanceProvider(client)

		bc := common
		provider := cached(inner)
		bc.Balances = provider
		bc.Dirty = provider
		bc.Units = inner
		bc.Fees = fallback(btc.NewFeeSource(client))
		bc.Pipeline = btc.NewPipeline(client, params)
		chains[chain.BTC] = bc
	}
	keys.btcParams = b.btcParams

	if c.Networks.XLM.Enabled {
		hc, err := transport.New("horizon", c.GetXLMHorizon(), opts(nil))
		if err != nil {
			return nil, err
		}
		client := xlm.NewClient(hc)
		inner := xlm.NewBalanceProvider(client)

		xc := common
		provider := cached(inner)
		xc.Balances = provider
		xc.Dirty = provider
		xc.Reserves = inner
		xc.Fees = fallback(xlm.NewFeeSource(client))
		xc.Pipeline = xlm.NewPipeline(client, c.Networks.XLM.Passphrase)
		chains[chain.XLM] = xc
	}

	b.coordinator = coordinator.New(coordinator.Config{Chains: chains, Trading: trading})
	return b, nil
}

// lazyKeys opens the keystore on the first unlock so commands that never
// sign work without one.
type lazyKeys struct {
	path      string
	btcParams *chaincfg.Params

	once  sync.Once
	store *keystore.Store
	err   error
}

// KeyPair implements signing.KeyPairProvider.
func (k *lazyKeys) KeyPair(ctx context.Context, chainID chain.ID, secondPassword string) (*signing.KeyPair, error) {
	k.once.Do(func() {
		k.store, k.err = keystore.Open(k.path, k.btcParams)
	})
	if k.err != nil {
		return nil, k.err
	}
	return k.store.KeyPair(ctx, chainID, secondPassword)
}

var (
	_ signing.KeyPairProvider = (*lazyKeys)(nil)
	_ target.DomainResolver   = (*custodial.Client)(nil)
	_ target.InvoiceResolver  = (*bitpay.Client)(nil)
)

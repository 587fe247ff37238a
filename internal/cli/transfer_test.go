package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/balance"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/config"
	"github.com/mrz1836/coincore/internal/coordinator"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/target"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

const (
	ethFrom = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	ethTo   = "0x1111111111111111111111111111111111111111"
)

func TestTransferFlags_Parse(t *testing.T) {
	tests := []struct {
		name    string
		flags   transferFlags
		wantErr error
		check   func(t *testing.T, tr transfer)
	}{
		{
			name:  "wallet to address",
			flags: transferFlags{asset: "eth", from: ethFrom, to: ethTo, amount: "1.4"},
			check: func(t *testing.T, tr transfer) {
				assert.Equal(t, chain.ETH, tr.asset.Chain)
				assert.Equal(t, account.NonCustodial, tr.source.Type)
				assert.Equal(t, "eth:"+ethFrom, tr.source.ID)
				assert.Equal(t, ethFrom, tr.source.Address)
				assert.Equal(t, target.KindAddress, tr.target.Kind())
				require.NotNil(t, tr.amount)
				assert.Equal(t, "1.4 ETH", tr.amount.DisplayString())
				assert.Equal(t, fee.None, tr.level)
			},
		},
		{
			name:  "trading to wallet with priority fee",
			flags: transferFlags{asset: "BTC", from: "Trading", to: "bc1qexample", amount: "0.01", feeTier: "priority"},
			check: func(t *testing.T, tr transfer) {
				assert.Equal(t, account.Trading, tr.source.Type)
				assert.Equal(t, "trading:BTC", tr.source.ID)
				assert.Equal(t, fee.Priority, tr.level)
			},
		},
		{
			name:  "invoice needs no amount",
			flags: transferFlags{asset: "btc", from: "bc1qsource", to: "invoice:KQxJ2s"},
			check: func(t *testing.T, tr transfer) {
				inv, ok := tr.target.(target.BitPayInvoice)
				require.True(t, ok)
				assert.Equal(t, "KQxJ2s", inv.InvoiceID)
				assert.Nil(t, tr.amount)
			},
		},
		{
			name:  "fee rate selects custom",
			flags: transferFlags{asset: "eth", from: ethFrom, to: ethTo, amount: "1", feeRate: "30000000000"},
			check: func(t *testing.T, tr transfer) {
				assert.Equal(t, fee.Custom, tr.level)
				require.NotNil(t, tr.custom)
				assert.Equal(t, "30000000000", tr.custom.String())
			},
		},
		{
			name:    "unknown asset",
			flags:   transferFlags{asset: "doge", from: ethFrom, to: ethTo, amount: "1"},
			wantErr: chain.ErrUnsupportedAsset,
		},
		{
			name:    "missing amount",
			flags:   transferFlags{asset: "eth", from: ethFrom, to: ethTo},
			wantErr: coreerr.ErrInvalidAmount,
		},
		{
			name:    "malformed amount",
			flags:   transferFlags{asset: "eth", from: ethFrom, to: ethTo, amount: "one"},
			wantErr: coreerr.ErrInvalidAmount,
		},
		{
			name:    "custom level without rate",
			flags:   transferFlags{asset: "eth", from: ethFrom, to: ethTo, amount: "1", feeTier: "custom"},
			wantErr: coreerr.ErrInvalidInput,
		},
		{
			name:    "negative fee rate",
			flags:   transferFlags{asset: "eth", from: ethFrom, to: ethTo, amount: "1", feeRate: "-5"},
			wantErr: coreerr.ErrInvalidInput,
		},
		{
			name:    "empty target",
			flags:   transferFlags{asset: "eth", from: ethFrom, to: "  ", amount: "1"},
			wantErr: coreerr.ErrInvalidAddress,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := tc.flags.parse()
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, tr)
		})
	}
}

func TestParseTarget(t *testing.T) {
	asset, err := chain.ParseAsset("xlm")
	require.NoError(t, err)

	tests := []struct {
		to   string
		kind target.Kind
	}{
		{"GABC", target.KindAddress},
		{"trading", target.KindCustodial},
		{"TRADING", target.KindCustodial},
		{"invoice:abc", target.KindBitPayInvoice},
		{"domain:alice.x", target.KindDomain},
	}
	for _, tc := range tests {
		t.Run(tc.to, func(t *testing.T) {
			tgt, err := parseTarget(tc.to, asset)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, tgt.Kind())
			assert.True(t, tgt.Currency().Equal(asset.Currency))
		})
	}

	tgt, err := parseTarget("Domain:Alice.x", asset)
	require.NoError(t, err)
	assert.Equal(t, "Alice.x", tgt.(target.Domain).Name)
}

func TestOpenSession_UnsupportedRoute(t *testing.T) {
	tr, err := (&transferFlags{asset: "eth", from: ethFrom, to: ethTo, amount: "1"}).parse()
	require.NoError(t, err)

	co := coordinator.New(coordinator.Config{})
	_, err = openSession(context.Background(), co, tr, &transferFlags{}, &fakePrompter{})
	require.ErrorIs(t, err, coreerr.ErrNotSupported)

	var ce *coreerr.CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ETH", ce.Details["asset"])
}

func TestQuote_UnsupportedRoute(t *testing.T) {
	home := t.TempDir()
	withPrompter(t, &fakePrompter{})
	withBackends(t, func() *backends {
		return &backends{
			coordinator: coordinator.New(coordinator.Config{}),
			cache:       balance.NewCache(),
			storage:     balance.NewFileStorage(filepath.Join(home, balanceCacheFile)),
			log:         config.NullLogger(),
		}
	})

	_, err := runCommand(t, "--home", home, "-o", "json",
		"quote", "--asset", "eth", "--from", "trading", "--to", "trading", "--amount", "1")
	require.ErrorIs(t, err, coreerr.ErrNotSupported)
	assert.FileExists(t, filepath.Join(home, balanceCacheFile))
}

func TestQuote_InvalidFlags(t *testing.T) {
	home := t.TempDir()
	_, err := runCommand(t, "--home", home, "quote", "--asset", "eth", "--from", ethFrom, "--to", ethTo)
	require.ErrorIs(t, err, coreerr.ErrInvalidAmount)
}

func TestConfirmed(t *testing.T) {
	for _, answer := range []string{"y", "Y", " yes\n", "YES"} {
		assert.True(t, confirmed(answer), answer)
	}
	for _, answer := range []string{"", "n", "no", "yep"} {
		assert.False(t, confirmed(answer), answer)
	}
}

func TestSend_InvalidAmountNeverPrompts(t *testing.T) {
	home := t.TempDir()
	p := &fakePrompter{lines: []string{"y"}}
	withPrompter(t, p)

	_, err := runCommand(t, "--home", home, "send", "--asset", "eth", "--from", ethFrom, "--to", ethTo, "--amount", "0x")
	require.ErrorIs(t, err, coreerr.ErrInvalidAmount)
	assert.Empty(t, p.labels)
}

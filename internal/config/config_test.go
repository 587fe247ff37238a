package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coincore/internal/config"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := config.Defaults()
	cfg.Networks.ETH.RPC = "https://eth.example.com"
	cfg.Custodial.URL = "https://trading.example.com"
	cfg.Display.Fiat = "EUR"

	require.NoError(t, config.Save(cfg, path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Version, loaded.Version)
	assert.Equal(t, "https://eth.example.com", loaded.GetETHRPC())
	assert.Equal(t, "https://trading.example.com", loaded.Custodial.URL)
	assert.Equal(t, money.EUR, loaded.GetFiat())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks:\n  btc:\n    api: https://mempool.example/api\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://mempool.example/api", cfg.GetBTCAPI())
	assert.Equal(t, config.DefaultXLMHorizonURL, cfg.GetXLMHorizon())
	assert.Equal(t, int64(1), cfg.Networks.ETH.ChainID)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, coreerr.ErrConfigNotFound)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks: [unterminated"), 0o600))
	_, err = config.Load(path)
	require.ErrorIs(t, err, coreerr.ErrConfigInvalid)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"defaults are valid", func(*config.Config) {}, ""},
		{"missing eth rpc", func(c *config.Config) { c.Networks.ETH.RPC = " " }, "networks.eth.rpc"},
		{"missing btc api", func(c *config.Config) { c.Networks.BTC.API = "" }, "networks.btc.api"},
		{"missing horizon", func(c *config.Config) { c.Networks.XLM.Horizon = "" }, "networks.xlm.horizon"},
		{"missing passphrase", func(c *config.Config) { c.Networks.XLM.Passphrase = "" }, "networks.xlm.passphrase"},
		{"disabled network skips check", func(c *config.Config) {
			c.Networks.BTC.Enabled = false
			c.Networks.BTC.API = ""
		}, ""},
		{"unknown fiat", func(c *config.Config) { c.Display.Fiat = "XYZ" }, "display.fiat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ce *coreerr.CoreError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "CONFIG_INVALID", ce.Code)
			assert.Equal(t, tt.field, ce.Details["field"])
		})
	}
}

func TestGetters(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()

	assert.Equal(t, "error", cfg.GetLoggingLevel())
	assert.Equal(t, "auto", cfg.GetOutputFormat())
	assert.Equal(t, 30.0, cfg.GetCustodialTimeout().Seconds())

	cfg.Custodial.TimeoutSeconds = 0
	assert.Equal(t, 30.0, cfg.GetCustodialTimeout().Seconds())

	cfg.Display.Fiat = "nope"
	assert.Equal(t, money.USD, cfg.GetFiat())

	assert.Equal(t, "/abs/path", config.ExpandHome("/abs/path"))
	assert.NotContains(t, cfg.GetKeystorePath(), "~")
}

func TestHomeRelativePaths(t *testing.T) {
	t.Parallel()
	home := t.TempDir()

	cfg := config.Defaults()
	cfg.Home = home
	assert.Equal(t, filepath.Join(home, config.DefaultVaultFile), cfg.GetKeystorePath())
	assert.Equal(t, filepath.Join(home, config.DefaultLogFile), cfg.GetLoggingFile())

	cfg.Keystore.Path = "/etc/vault.age"
	cfg.Logging.File = "/var/log/coincore.log"
	assert.Equal(t, "/etc/vault.age", cfg.GetKeystorePath())
	assert.Equal(t, "/var/log/coincore.log", cfg.GetLoggingFile())
}

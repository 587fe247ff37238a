// Package config provides configuration management for coincore.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Networks  NetworksConfig  `yaml:"networks"`
	Custodial CustodialConfig `yaml:"custodial"`
	BitPay    BitPayConfig    `yaml:"bitpay"`
	Fees      FeesConfig      `yaml:"fees"`
	Display   DisplayConfig   `yaml:"display"`
	Keystore  KeystoreConfig  `yaml:"keystore"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// NetworksConfig defines per-chain network settings.
type NetworksConfig struct {
	ETH ETHNetworkConfig `yaml:"eth"`
	BTC BTCNetworkConfig `yaml:"btc"`
	XLM XLMNetworkConfig `yaml:"xlm"`
}

// ETHNetworkConfig defines Ethereum network settings.
type ETHNetworkConfig struct {
	Enabled bool   `yaml:"enabled"`
	RPC     string `yaml:"rpc"`
	ChainID int64  `yaml:"chain_id"`
}

// BTCNetworkConfig defines Bitcoin network settings.
type BTCNetworkConfig struct {
	Enabled bool   `yaml:"enabled"`
	API     string `yaml:"api"`     // Esplora base URL
	Network string `yaml:"network"` // mainnet or testnet
}

// XLMNetworkConfig defines Stellar network settings.
type XLMNetworkConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Horizon    string `yaml:"horizon"`
	Passphrase string `yaml:"passphrase"`
}

// CustodialConfig defines the trading backend settings.
type CustodialConfig struct {
	URL            string  `yaml:"url"`
	Token          string  `yaml:"token"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// BitPayConfig defines BitPay invoice settings.
type BitPayConfig struct {
	URL string `yaml:"url"`
}

// FeesConfig defines per-asset default fee overrides, used when a fee source fails.
// Values are per-unit minor prices: gwei for ETH, sat/vB for BTC, stroops for XLM.
type FeesConfig struct {
	ETHRegularGwei   int64 `yaml:"eth_regular_gwei"`
	ETHPriorityGwei  int64 `yaml:"eth_priority_gwei"`
	BTCRegularSatVB  int64 `yaml:"btc_regular_sat_vb"`
	BTCPrioritySatVB int64 `yaml:"btc_priority_sat_vb"`
	XLMBaseFee       int64 `yaml:"xlm_base_fee"`
}

// DisplayConfig defines presentation settings used for confirmation lines.
type DisplayConfig struct {
	Fiat string `yaml:"fiat"`
}

// KeystoreConfig defines where the encrypted key vault lives.
type KeystoreConfig struct {
	Path string `yaml:"path"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig defines metrics export settings.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, coreerr.WithDetails(coreerr.ErrConfigNotFound, map[string]string{"path": path})
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, coreerr.Wrap(coreerr.ErrConfigInvalid, "parse %s: %v", path, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks the settings the engine relies on.
func (c *Config) Validate() error {
	if c.Networks.ETH.Enabled && strings.TrimSpace(c.Networks.ETH.RPC) == "" {
		return coreerr.WithDetails(coreerr.ErrConfigInvalid, map[string]string{"field": "networks.eth.rpc"})
	}
	if c.Networks.BTC.Enabled && strings.TrimSpace(c.Networks.BTC.API) == "" {
		return coreerr.WithDetails(coreerr.ErrConfigInvalid, map[string]string{"field": "networks.btc.api"})
	}
	if c.Networks.XLM.Enabled {
		if strings.TrimSpace(c.Networks.XLM.Horizon) == "" {
			return coreerr.WithDetails(coreerr.ErrConfigInvalid, map[string]string{"field": "networks.xlm.horizon"})
		}
		if strings.TrimSpace(c.Networks.XLM.Passphrase) == "" {
			return coreerr.WithDetails(coreerr.ErrConfigInvalid, map[string]string{"field": "networks.xlm.passphrase"})
		}
	}
	if _, ok := money.Fiat(c.Display.Fiat); !ok {
		return coreerr.WithDetails(coreerr.ErrConfigInvalid, map[string]string{
			"field": "display.fiat",
			"value": c.Display.Fiat,
		})
	}
	return nil
}

// GetHome returns the home directory with "~/" expanded.
func (c *Config) GetHome() string {
	return ExpandHome(c.Home)
}

// GetETHRPC returns the Ethereum RPC URL.
func (c *Config) GetETHRPC() string {
	return c.Networks.ETH.RPC
}

// GetBTCAPI returns the Esplora base URL.
func (c *Config) GetBTCAPI() string {
	return c.Networks.BTC.API
}

// GetXLMHorizon returns the Horizon base URL.
func (c *Config) GetXLMHorizon() string {
	return c.Networks.XLM.Horizon
}

// GetFiat returns the configured display currency, falling back to USD.
func (c *Config) GetFiat() money.Currency {
	if fiat, ok := money.Fiat(c.Display.Fiat); ok {
		return fiat
	}
	return money.USD
}

// GetCustodialTimeout returns the trading backend request timeout.
func (c *Config) GetCustodialTimeout() time.Duration {
	if c.Custodial.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Custodial.TimeoutSeconds) * time.Second
}

// GetKeystorePath returns the vault path with "~/" expanded. An empty
// path places the vault in the home directory.
func (c *Config) GetKeystorePath() string {
	if c.Keystore.Path == "" {
		return filepath.Join(c.GetHome(), DefaultVaultFile)
	}
	return ExpandHome(c.Keystore.Path)
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the log file path. An empty path logs to a file
// in the home directory.
func (c *Config) GetLoggingFile() string {
	if c.Logging.File == "" {
		return filepath.Join(c.GetHome(), DefaultLogFile)
	}
	return ExpandHome(c.Logging.File)
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// DefaultHome returns the default coincore home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coincore"
	}
	return filepath.Join(home, ".coincore")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

package config

// DefaultETHRPCURL is the default Ethereum RPC endpoint.
// Uses PublicNode (Allnodes), a privacy-first provider that requires no API key.
const DefaultETHRPCURL = "https://ethereum-rpc.publicnode.com"

// DefaultBTCAPIURL is the default Esplora endpoint.
const DefaultBTCAPIURL = "https://blockstream.info/api"

// DefaultXLMHorizonURL is the default Stellar Horizon endpoint.
const DefaultXLMHorizonURL = "https://horizon.stellar.org"

// File names under the home directory.
const (
	DefaultVaultFile = "vault.age"
	DefaultLogFile   = "coincore.log"
)

// StellarPublicPassphrase is the Stellar public network passphrase.
const StellarPublicPassphrase = "Public Global Stellar Network ; September 2015"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.coincore",
		Networks: NetworksConfig{
			ETH: ETHNetworkConfig{
				Enabled: true,
				RPC:     DefaultETHRPCURL,
				ChainID: 1,
			},
			BTC: BTCNetworkConfig{
				Enabled: true,
				API:     DefaultBTCAPIURL,
				Network: "mainnet",
			},
			XLM: XLMNetworkConfig{
				Enabled:    true,
				Horizon:    DefaultXLMHorizonURL,
				Passphrase: StellarPublicPassphrase,
			},
		},
		Custodial: CustodialConfig{
			RatePerSecond:  5,
			TimeoutSeconds: 30,
		},
		BitPay: BitPayConfig{
			URL: "https://bitpay.com",
		},
		Display: DisplayConfig{
			Fiat: "USD",
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
		},
		Logging: LoggingConfig{
			Level:      "error",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

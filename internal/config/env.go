package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome            = "COINCORE_HOME"
	EnvETHRPC          = "COINCORE_ETH_RPC"
	EnvBTCAPI          = "COINCORE_BTC_API"
	EnvXLMHorizon      = "COINCORE_XLM_HORIZON"
	EnvCustodialURL    = "COINCORE_CUSTODIAL_URL"
	EnvCustodialToken  = "COINCORE_CUSTODIAL_TOKEN" // #nosec G101 -- false positive, this is a const name not a credential
	EnvFiat            = "COINCORE_FIAT"
	EnvOutputFormat    = "COINCORE_OUTPUT_FORMAT"
	EnvLogLevel        = "COINCORE_LOG_LEVEL"
	EnvMetrics         = "COINCORE_METRICS"
	EnvMetricsTextfile = "COINCORE_METRICS_TEXTFILE"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvETHRPC); v != "" {
		cfg.Networks.ETH.RPC = SanitizeURL(v)
	}

	if v := os.Getenv(EnvBTCAPI); v != "" {
		cfg.Networks.BTC.API = SanitizeURL(v)
	}

	if v := os.Getenv(EnvXLMHorizon); v != "" {
		cfg.Networks.XLM.Horizon = SanitizeURL(v)
	}

	if v := os.Getenv(EnvCustodialURL); v != "" {
		cfg.Custodial.URL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvCustodialToken); v != "" {
		cfg.Custodial.Token = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvFiat); v != "" {
		cfg.Display.Fiat = strings.ToUpper(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvMetrics); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}

	if v := os.Getenv(EnvMetricsTextfile); v != "" {
		cfg.Metrics.Textfile = v
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL trims whitespace and strips control characters and spaces that
// creep into copy-pasted endpoint URLs.
func SanitizeURL(url string) string {
	url = strings.TrimSpace(url)
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, url)
}

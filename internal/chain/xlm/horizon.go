// Package xlm implements the ledger-sequence route on Stellar: a Horizon
// client, reserve math, memos, and payments built and signed with the
// Stellar SDK.
package xlm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/mrz1836/coincore/internal/transport"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Network passphrases.
const (
	PublicNetworkPassphrase = "Public Global Stellar Network ; September 2015"
	TestNetworkPassphrase   = "Test SDF Network ; September 2015"
)

// AccountResponse is the subset of a Horizon account record the route reads.
type AccountResponse struct {
	ID            string `json:"account_id"`
	Sequence      string `json:"sequence"`
	SubentryCount int    `json:"subentry_count"`
	Balances      []struct {
		AssetType string `json:"asset_type"`
		Balance   string `json:"balance"`
	} `json:"balances"`
}

// NativeBalance returns the lumen balance as a decimal string.
func (a *AccountResponse) NativeBalance() string {
	for _, b := range a.Balances {
		if b.AssetType == "native" {
			return b.Balance
		}
	}
	return "0"
}

// Ledger is the subset of a ledger record with fee and reserve parameters.
type Ledger struct {
	Sequence             int64 `json:"sequence"`
	BaseFeeInStroops     int64 `json:"base_fee_in_stroops"`
	BaseReserveInStroops int64 `json:"base_reserve_in_stroops"`
}

// FeeStats is the subset of /fee_stats the fee source reads.
type FeeStats struct {
	LastLedgerBaseFee string `json:"last_ledger_base_fee"`
	FeeCharged        struct {
		P10 string `json:"p10"`
		P50 string `json:"p50"`
		P90 string `json:"p90"`
	} `json:"fee_charged"`
}

// Client talks to a Horizon server.
type Client struct {
	http *transport.Client
}

// NewClient creates a Horizon client over a transport client.
func NewClient(hc *transport.Client) *Client {
	return &Client{http: hc}
}

// Account fetches an account. Unfunded accounts return coreerr.ErrNotFound.
func (c *Client) Account(ctx context.Context, id string) (*AccountResponse, error) {
	var acct AccountResponse
	if err := c.http.GetJSON(ctx, "accounts/"+id, nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// LatestLedger fetches the most recently closed ledger.
func (c *Client) LatestLedger(ctx context.Context) (*Ledger, error) {
	var page struct {
		Embedded struct {
			Records []Ledger `json:"records"`
		} `json:"_embedded"`
	}
	q := url.Values{"order": {"desc"}, "limit": {"1"}}
	if err := c.http.GetJSON(ctx, "ledgers", q, &page); err != nil {
		return nil, err
	}
	if len(page.Embedded.Records) == 0 {
		return nil, coreerr.Wrap(coreerr.ErrNetworkError, "horizon returned no ledgers")
	}
	return &page.Embedded.Records[0], nil
}

// FeeStats fetches recent fee statistics.
func (c *Client) FeeStats(ctx context.Context) (*FeeStats, error) {
	var stats FeeStats
	if err := c.http.GetJSON(ctx, "fee_stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Submit posts a base64 XDR envelope and returns the transaction hash.
func (c *Client) Submit(ctx context.Context, envelopeB64 string) (string, error) {
	var resp struct {
		Hash string `json:"hash"`
	}
	err := c.http.PostForm(ctx, "transactions", url.Values{"tx": {envelopeB64}}, &resp)
	if err != nil {
		return "", submitError(err)
	}
	return resp.Hash, nil
}

// submitError maps Horizon's result codes onto a rejected-transaction error.
func submitError(err error) error {
	var se *transport.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		return err
	}

	var problem struct {
		Extras struct {
			ResultCodes struct {
				Transaction string   `json:"transaction"`
				Operations  []string `json:"operations"`
			} `json:"result_codes"`
		} `json:"extras"`
	}
	details := map[string]string{}
	if jsonErr := json.Unmarshal([]byte(se.Body), &problem); jsonErr == nil {
		details["transaction"] = problem.Extras.ResultCodes.Transaction
		details["operations"] = strings.Join(problem.Extras.ResultCodes.Operations, ",")
	}
	return &coreerr.CoreError{
		Code:     coreerr.ErrTxRejected.Code,
		Message:  "transaction rejected by horizon",
		Details:  details,
		Cause:    err,
		ExitCode: coreerr.ErrTxRejected.ExitCode,
	}
}

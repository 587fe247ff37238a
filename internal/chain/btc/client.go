// Package btc implements the UTXO route on Bitcoin: an Esplora client, the
// fee-estimate source, balance provider, UTXO selection, and the P2PKH
// build/sign/broadcast pipeline on btcd.
package btc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mrz1836/coincore/internal/transport"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Network names accepted in configuration.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// Params returns the chain parameters for a configured network name.
func Params(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "", NetworkMainnet, "main":
		return &chaincfg.MainNetParams, nil
	case NetworkTestnet, "test", "testnet3":
		return &chaincfg.TestNet3Params, nil
	default:
		return nil, coreerr.WithDetails(coreerr.ErrConfigInvalid, map[string]string{"field": "networks.btc.network", "value": network})
	}
}

// UTXO is an unspent output owned by an address.
type UTXO struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	Value     uint64 `json:"value"`
	Confirmed bool   `json:"-"`
}

type utxoResponse struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
}

// MempoolTx is an unconfirmed transaction touching an address.
type MempoolTx struct {
	TxID string `json:"txid"`
	Vin  []struct {
		Prevout struct {
			Address string `json:"scriptpubkey_address"`
			Value   uint64 `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
}

// Spends reports whether the transaction spends an output of address.
func (t MempoolTx) Spends(address string) bool {
	for _, in := range t.Vin {
		if in.Prevout.Address == address {
			return true
		}
	}
	return false
}

// Client talks to an Esplora-compatible indexer.
type Client struct {
	http *transport.Client
}

// NewClient creates an Esplora client over a transport client.
func NewClient(hc *transport.Client) *Client {
	return &Client{http: hc}
}

// UTXOs lists the unspent outputs of address, including unconfirmed ones.
func (c *Client) UTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var resp []utxoResponse
	if err := c.http.GetJSON(ctx, "address/"+address+"/utxo", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]UTXO, len(resp))
	for i, u := range resp {
		out[i] = UTXO{TxID: u.TxID, Vout: u.Vout, Value: u.Value, Confirmed: u.Status.Confirmed}
	}
	return out, nil
}

// Mempool lists unconfirmed transactions touching address.
func (c *Client) Mempool(ctx context.Context, address string) ([]MempoolTx, error) {
	var txs []MempoolTx
	if err := c.http.GetJSON(ctx, "address/"+address+"/txs/mempool", nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// FeeEstimates returns sat/vB estimates keyed by confirmation target in blocks.
func (c *Client) FeeEstimates(ctx context.Context) (map[string]float64, error) {
	var est map[string]float64
	if err := c.http.GetJSON(ctx, "fee-estimates", nil, &est); err != nil {
		return nil, err
	}
	return est, nil
}

// Broadcast submits a hex-encoded transaction and returns its txid.
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	body, err := c.http.PostRaw(ctx, "tx", "text/plain", []byte(rawHex))
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) && se.Status == http.StatusBadRequest {
			return "", &coreerr.CoreError{
				Code:     coreerr.ErrTxRejected.Code,
				Message:  "transaction rejected: " + se.Body,
				Cause:    err,
				ExitCode: coreerr.ErrTxRejected.ExitCode,
			}
		}
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

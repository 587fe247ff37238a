// Package bitpay resolves BitPay invoices into payment instructions and
// submits signed invoice payments through the BitPay JSON payment protocol.
package bitpay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/signing"
	"github.com/mrz1836/coincore/internal/target"
	"github.com/mrz1836/coincore/internal/transport"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Payment protocol content types.
const (
	contentPaymentRequest      = "application/payment-request"
	contentPaymentVerification = "application/payment-verification"
	contentPayment             = "application/payment"
)

// ProtocolHeaders are the headers every payment protocol request carries.
// Pass them as transport.Options.Headers.
func ProtocolHeaders() map[string]string {
	return map[string]string{"x-paypro-version": "2"}
}

// PaymentRequest is the payment instruction of an invoice.
type PaymentRequest struct {
	InvoiceID  string
	Address    string
	Amount     money.Value
	Memo       string
	PaymentURL string
	Expires    time.Time
	// RequiredFeeRate is the minimum per-unit fee the invoice accepts.
	RequiredFeeRate *big.Int
}

// Client talks to the BitPay invoice endpoint.
type Client struct {
	http *transport.Client
}

// NewClient creates a client over hc, which should be rooted at the invoice
// base URL (https://bitpay.com/i) and carry ProtocolHeaders.
func NewClient(hc *transport.Client) *Client {
	return &Client{http: hc}
}

type paymentRequestResponse struct {
	Time         time.Time `json:"time"`
	Expires      time.Time `json:"expires"`
	Memo         string    `json:"memo"`
	PaymentURL   string    `json:"paymentUrl"`
	PaymentID    string    `json:"paymentId"`
	Instructions []struct {
		Type            string      `json:"type"`
		RequiredFeeRate json.Number `json:"requiredFeeRate"`
		Outputs         []struct {
			Amount  json.Number `json:"amount"`
			Address string      `json:"address"`
		} `json:"outputs"`
	} `json:"instructions"`
}

// PaymentRequest fetches the payment instruction of an invoice for currency.
func (c *Client) PaymentRequest(ctx context.Context, invoiceID string, currency money.Currency) (*PaymentRequest, error) {
	chainCode, err := chainCode(currency)
	if err != nil {
		return nil, err
	}

	var resp paymentRequestResponse
	err = c.post(ctx, invoiceID, contentPaymentRequest, map[string]string{
		"chain":    chainCode,
		"currency": currency.Code,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetching invoice %s: %w", invoiceID, err)
	}

	if len(resp.Instructions) == 0 || len(resp.Instructions[0].Outputs) == 0 {
		return nil, coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{
			"invoice": invoiceID,
			"reason":  "no payment outputs",
		})
	}
	instr := resp.Instructions[0]
	if len(instr.Outputs) > 1 {
		return nil, coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{
			"invoice": invoiceID,
			"reason":  "multiple payment outputs",
		})
	}
	out := instr.Outputs[0]

	amount, ok := new(big.Int).SetString(out.Amount.String(), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, coreerr.Wrap(coreerr.ErrInvalidAmount, "invoice %s amount %q", invoiceID, out.Amount)
	}
	pr := &PaymentRequest{
		InvoiceID:  invoiceID,
		Address:    out.Address,
		Amount:     money.NewFromMinor(amount, currency),
		Memo:       resp.Memo,
		PaymentURL: resp.PaymentURL,
		Expires:    resp.Expires,
	}
	if rate, ok := new(big.Int).SetString(instr.RequiredFeeRate.String(), 10); ok {
		pr.RequiredFeeRate = rate
	}
	return pr, nil
}

// ResolveInvoice implements target.InvoiceResolver.
func (c *Client) ResolveInvoice(ctx context.Context, invoiceID string, currency money.Currency) (target.Destination, error) {
	pr, err := c.PaymentRequest(ctx, invoiceID, currency)
	if err != nil {
		return target.Destination{}, err
	}
	amount := pr.Amount
	return target.Destination{
		Address:    pr.Address,
		Amount:     &amount,
		Expires:    pr.Expires,
		PaymentURL: pr.PaymentURL,
	}, nil
}

type paymentBody struct {
	Chain        string      `json:"chain"`
	Currency     string      `json:"currency"`
	Transactions []paymentTx `json:"transactions"`
}

type paymentTx struct {
	Tx           string `json:"tx"`
	WeightedSize int    `json:"weightedSize"`
}

// Pay verifies a signed payment with the invoice and then submits it.
// BitPay broadcasts accepted payments itself.
func (c *Client) Pay(ctx context.Context, invoiceID string, currency money.Currency, raw []byte) error {
	chainCode, err := chainCode(currency)
	if err != nil {
		return err
	}
	body := paymentBody{
		Chain:    chainCode,
		Currency: currency.Code,
		Transactions: []paymentTx{{
			Tx:           hex.EncodeToString(raw),
			WeightedSize: len(raw),
		}},
	}

	if err := c.post(ctx, invoiceID, contentPaymentVerification, body, nil); err != nil {
		return rejected(invoiceID, "verify", err)
	}
	if err := c.post(ctx, invoiceID, contentPayment, body, nil); err != nil {
		return rejected(invoiceID, "pay", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, invoiceID, contentType string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	data, err := c.http.PostRaw(ctx, url.PathEscape(invoiceID), contentType, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", c.http.Service(), err)
	}
	return nil
}

// Broadcaster submits signed transactions as payments of one invoice.
type Broadcaster struct {
	client    *Client
	invoiceID string
	currency  money.Currency
	now       func() time.Time
}

// NewBroadcaster creates a broadcaster paying invoiceID in currency.
func NewBroadcaster(client *Client, invoiceID string, currency money.Currency) *Broadcaster {
	return &Broadcaster{client: client, invoiceID: invoiceID, currency: currency, now: time.Now}
}

// Submit implements signing.Broadcaster.
func (b *Broadcaster) Submit(ctx context.Context, s *signing.Signed) (*signing.Published, error) {
	if err := b.client.Pay(ctx, b.invoiceID, b.currency, s.Raw); err != nil {
		return nil, err
	}
	return &signing.Published{Chain: s.Chain, Hash: s.Hash, SubmittedAt: b.now()}, nil
}

func rejected(invoiceID, step string, err error) error {
	var se *transport.StatusError
	if !errors.As(err, &se) {
		return err
	}
	return &coreerr.CoreError{
		Code:    coreerr.ErrTxRejected.Code,
		Message: "invoice payment rejected",
		Details: map[string]string{
			"invoice": invoiceID,
			"step":    step,
			"reason":  strings.TrimSpace(se.Body),
		},
		Cause:    err,
		ExitCode: coreerr.ErrTxRejected.ExitCode,
	}
}

// chainCode returns the payment protocol chain of a currency. Tokens pay on
// their parent chain.
func chainCode(c money.Currency) (string, error) {
	a, ok := chain.AssetFor(c)
	if !ok || a.Chain == chain.XLM {
		return "", coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{
			"invoice_currency": c.Code,
		})
	}
	return strings.ToUpper(string(a.Chain)), nil
}

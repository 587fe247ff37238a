// Package custodial is the client of the trading backend: quotes, orders,
// withdrawals from trading accounts, deposit addresses, balances, domain
// resolution and fiat prices.
//
// Order creation and withdrawals are writes. They pass through the transport
// breaker and rate limiter but are never retried, so a timeout after the
// request left the process may still have created the order.
package custodial

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/transport"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Order states reported by the backend.
const (
	StatePendingDeposit   = "PENDING_DEPOSIT"
	StatePendingExecution = "PENDING_EXECUTION"
	StateFinished         = "FINISHED"
	StateFailed           = "FAILED"
	StateExpired          = "EXPIRED"
	StateRefunded         = "REFUNDED"
)

// Quote is a priced, expiring offer to trade one currency for another.
type Quote struct {
	ID   string
	Pair money.Pair
	// NetworkFee is charged by the backend in the quote currency.
	NetworkFee money.Value
	ExpiresAt  time.Time
}

// Order is a trading order. Everything except State is fixed at creation.
type Order struct {
	ID             string
	Direction      Direction
	State          string
	DepositAddress string
	DepositMemo    string
	// CounterAmount is the amount the order pays out, in the output currency.
	CounterAmount money.Value
	CreatedAt     time.Time
}

// Terminal reports whether the order can no longer change state.
func (o *Order) Terminal() bool {
	switch o.State {
	case StateFinished, StateFailed, StateExpired, StateRefunded:
		return true
	default:
		return false
	}
}

// OrderRequest describes an order to create.
type OrderRequest struct {
	Direction Direction
	QuoteID   string
	Volume    money.Value
	// DestinationAddress is where the backend pays out on-chain.
	DestinationAddress string
	// RefundAddress is where a failed deposit is returned.
	RefundAddress string
}

// Withdrawal is an accepted transfer out of a trading account.
type Withdrawal struct {
	ID     string
	State  string
	Amount money.Value
}

// WithdrawalFees are the fee and minimum amount of a withdrawal in one currency.
type WithdrawalFees struct {
	Fee     money.Value
	Minimum money.Value
}

// Client talks to the trading backend.
type Client struct {
	http *transport.Client
}

// NewClient creates a client over hc.
func NewClient(hc *transport.Client) *Client {
	return &Client{http: hc}
}

type quoteRequest struct {
	Pair      string    `json:"pair"`
	Direction Direction `json:"direction"`
	Amount    string    `json:"amount"`
}

type quoteResponse struct {
	ID         string          `json:"id"`
	Pair       string          `json:"pair"`
	Price      decimal.Decimal `json:"price"`
	NetworkFee string          `json:"networkFee"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// FetchQuote asks for a quote to trade volume into the output currency.
func (c *Client) FetchQuote(ctx context.Context, direction Direction, volume money.Value, output money.Currency) (*Quote, error) {
	pair := volume.Currency().Code + "-" + output.Code
	var resp quoteResponse
	err := c.http.PostJSON(ctx, "custodial/quote", quoteRequest{
		Pair:      pair,
		Direction: direction,
		Amount:    volume.Minor().String(),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetching %s quote: %w", pair, err)
	}
	if resp.ID == "" {
		return nil, coreerr.Wrap(coreerr.ErrNetworkError, "quote for %s has no id", pair)
	}

	fee, err := parseMinor(resp.NetworkFee, output)
	if err != nil {
		return nil, err
	}
	return &Quote{
		ID:         resp.ID,
		Pair:       money.NewPair(volume.Currency(), output, resp.Price),
		NetworkFee: fee,
		ExpiresAt:  resp.ExpiresAt,
	}, nil
}

type createOrderRequest struct {
	Direction          Direction `json:"direction"`
	QuoteID            string    `json:"quoteId"`
	Volume             string    `json:"volume"`
	DestinationAddress string    `json:"destinationAddress,omitempty"`
	RefundAddress      string    `json:"refundAddress,omitempty"`
	IdempotencyKey     string    `json:"idempotencyKey"`
}

type orderResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Kind  struct {
		Direction      Direction `json:"direction"`
		DepositAddress string    `json:"depositAddress"`
	} `json:"kind"`
	PriceFunnel struct {
		OutputMoney    string `json:"outputMoney"`
		OutputCurrency string `json:"outputCurrency"`
	} `json:"priceFunnel"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateOrder creates an order. Directions that pay out or refund on chain
// must carry the matching address.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if !req.Direction.Valid() {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"direction": string(req.Direction)})
	}
	if req.Direction.RequiresDestinationAddress() && strings.TrimSpace(req.DestinationAddress) == "" {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{
			"field":     "destinationAddress",
			"direction": string(req.Direction),
		})
	}
	if req.Direction.RequiresRefundAddress() && strings.TrimSpace(req.RefundAddress) == "" {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{
			"field":     "refundAddress",
			"direction": string(req.Direction),
		})
	}
	if req.QuoteID == "" {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"field": "quoteId"})
	}

	var resp orderResponse
	err := c.http.PostJSON(ctx, "custodial/trades", createOrderRequest{
		Direction:          req.Direction,
		QuoteID:            req.QuoteID,
		Volume:             req.Volume.Minor().String(),
		DestinationAddress: req.DestinationAddress,
		RefundAddress:      req.RefundAddress,
		IdempotencyKey:     uuid.NewString(),
	}, &resp)
	if err != nil {
		return nil, orderFailed("create", err)
	}
	return resp.order()
}

// UpdateOrder reports whether the deposit leg of an order was broadcast.
func (c *Client) UpdateOrder(ctx context.Context, id string, success bool) error {
	err := c.http.PostJSON(ctx, "custodial/trades/"+url.PathEscape(id), map[string]bool{"success": success}, nil)
	if err != nil {
		return orderFailed("update", err)
	}
	return nil
}

// FetchOrder returns the current state of an order.
func (c *Client) FetchOrder(ctx context.Context, id string) (*Order, error) {
	var resp orderResponse
	if err := c.http.GetJSON(ctx, "custodial/trades/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching order %s: %w", id, err)
	}
	return resp.order()
}

func (r *orderResponse) order() (*Order, error) {
	if r.ID == "" {
		return nil, coreerr.Wrap(coreerr.ErrOrderFailed, "backend returned an order without id")
	}
	out, err := currencyFor(r.PriceFunnel.OutputCurrency)
	if err != nil {
		return nil, err
	}
	counter, err := parseMinor(r.PriceFunnel.OutputMoney, out)
	if err != nil {
		return nil, err
	}
	addr, memo := splitAddress(r.Kind.DepositAddress)
	return &Order{
		ID:             r.ID,
		Direction:      r.Kind.Direction,
		State:          r.State,
		DepositAddress: addr,
		DepositMemo:    memo,
		CounterAmount:  counter,
		CreatedAt:      r.CreatedAt,
	}, nil
}

type transferRequest struct {
	Address  string `json:"address"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
	ClientID string `json:"clientId"`
}

type transferResponse struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Amount struct {
		Symbol string `json:"symbol"`
		Value  string `json:"value"`
	} `json:"amount"`
}

// Transfer withdraws amount from the trading account to an on-chain address.
func (c *Client) Transfer(ctx context.Context, amount money.Value, destination, memo string) (*Withdrawal, error) {
	if strings.TrimSpace(destination) == "" {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{"field": "destination"})
	}
	address := destination
	if memo != "" {
		address += ":" + memo
	}

	var resp transferResponse
	err := c.http.PostJSON(ctx, "payments/withdrawals", transferRequest{
		Address:  address,
		Currency: amount.Currency().Code,
		Amount:   amount.Minor().String(),
		ClientID: uuid.NewString(),
	}, &resp)
	if err != nil {
		return nil, orderFailed("withdraw", err)
	}
	if resp.ID == "" {
		return nil, coreerr.Wrap(coreerr.ErrOrderFailed, "withdrawal accepted without id")
	}

	sent := amount
	if resp.Amount.Value != "" {
		if sent, err = parseMinor(resp.Amount.Value, amount.Currency()); err != nil {
			return nil, err
		}
	}
	return &Withdrawal{ID: resp.ID, State: resp.State, Amount: sent}, nil
}

type minorAmount struct {
	Symbol     string `json:"symbol"`
	MinorValue string `json:"minorValue"`
}

type feesResponse struct {
	Fees       []minorAmount `json:"fees"`
	MinAmounts []minorAmount `json:"minAmounts"`
}

// WithdrawalFees returns the backend fee and minimum for withdrawing currency.
// A currency missing from the table has a zero fee and minimum.
func (c *Client) WithdrawalFees(ctx context.Context, currency money.Currency) (WithdrawalFees, error) {
	var resp feesResponse
	query := url.Values{"product": {"SIMPLEBUY"}, "paymentMethod": {"DEFAULT"}}
	if err := c.http.GetJSON(ctx, "payments/withdrawals/fees", query, &resp); err != nil {
		return WithdrawalFees{}, fmt.Errorf("fetching withdrawal fees: %w", err)
	}

	out := WithdrawalFees{Fee: money.Zero(currency), Minimum: money.Zero(currency)}
	var err error
	if v, ok := findMinor(resp.Fees, currency.Code); ok {
		if out.Fee, err = parseMinor(v, currency); err != nil {
			return WithdrawalFees{}, err
		}
	}
	if v, ok := findMinor(resp.MinAmounts, currency.Code); ok {
		if out.Minimum, err = parseMinor(v, currency); err != nil {
			return WithdrawalFees{}, err
		}
	}
	return out, nil
}

// ReceiveAddress returns the deposit address of the trading account for currency.
func (c *Client) ReceiveAddress(ctx context.Context, currency money.Currency) (address, memo string, err error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.http.PutJSON(ctx, "payments/accounts/simplebuy", map[string]string{"currency": currency.Code}, &resp); err != nil {
		return "", "", fmt.Errorf("fetching %s deposit address: %w", currency.Code, err)
	}
	if resp.Address == "" {
		return "", "", coreerr.WithDetails(coreerr.ErrNotFound, map[string]string{"deposit_address": currency.Code})
	}
	address, memo = splitAddress(resp.Address)
	return address, memo, nil
}

type balanceResponse struct {
	Available    string `json:"available"`
	Withdrawable string `json:"withdrawable"`
	Pending      string `json:"pending"`
}

// WithdrawableBalance returns the trading balance that can leave the backend.
// A currency the backend does not report has a zero balance.
func (c *Client) WithdrawableBalance(ctx context.Context, currency money.Currency) (money.Value, error) {
	var resp map[string]balanceResponse
	if err := c.http.GetJSON(ctx, "accounts/custodial", nil, &resp); err != nil {
		return money.Value{}, fmt.Errorf("fetching trading balances: %w", err)
	}
	b, ok := resp[currency.Code]
	if !ok || b.Withdrawable == "" {
		return money.Zero(currency), nil
	}
	return parseMinor(b.Withdrawable, currency)
}

// ResolveDomain resolves a human-readable name to an address for currency.
// It implements target.DomainResolver.
func (c *Client) ResolveDomain(ctx context.Context, name string, currency money.Currency) (address, memo string, err error) {
	var resp struct {
		Currency string `json:"currency"`
		Address  string `json:"address"`
	}
	err = c.http.PostJSON(ctx, "resolve", map[string]string{"currency": currency.Code, "name": name}, &resp)
	if err != nil {
		return "", "", fmt.Errorf("resolving %s: %w", name, err)
	}
	if resp.Address == "" {
		return "", "", coreerr.WithDetails(coreerr.ErrNotFound, map[string]string{"domain": name, "currency": currency.Code})
	}
	address, memo = splitAddress(resp.Address)
	return address, memo, nil
}

// Rate returns the price of one unit of base in quote.
func (c *Client) Rate(ctx context.Context, base, quote money.Currency) (money.Pair, error) {
	var resp struct {
		Price decimal.Decimal `json:"price"`
	}
	query := url.Values{"base": {base.Code}, "quote": {quote.Code}}
	if err := c.http.GetJSON(ctx, "price/index", query, &resp); err != nil {
		return money.Pair{}, fmt.Errorf("fetching %s-%s price: %w", base.Code, quote.Code, err)
	}
	if !resp.Price.IsPositive() {
		return money.Pair{}, coreerr.Wrap(coreerr.ErrNetworkError, "no %s-%s price", base.Code, quote.Code)
	}
	return money.NewPair(base, quote, resp.Price), nil
}

// orderFailed reports a failed write as ORDER_FAILED, keeping the cause.
// Cancellation is returned unchanged.
func orderFailed(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &coreerr.CoreError{
		Code:     coreerr.ErrOrderFailed.Code,
		Message:  op + " order failed",
		Cause:    err,
		ExitCode: coreerr.ErrOrderFailed.ExitCode,
	}
}

// splitAddress splits the backend's "address:memo" form.
func splitAddress(s string) (address, memo string) {
	address, memo, _ = strings.Cut(s, ":")
	return address, memo
}

func findMinor(list []minorAmount, code string) (string, bool) {
	for _, m := range list {
		if strings.EqualFold(m.Symbol, code) {
			return m.MinorValue, true
		}
	}
	return "", false
}

func parseMinor(s string, c money.Currency) (money.Value, error) {
	if s == "" {
		return money.Zero(c), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return money.Value{}, coreerr.Wrap(coreerr.ErrNetworkError, "invalid %s minor amount %q", c.Code, s)
	}
	return money.NewFromMinor(n, c), nil
}

func currencyFor(code string) (money.Currency, error) {
	if a, ok := chain.LookupAsset(code); ok {
		return a.Currency, nil
	}
	if f, ok := money.Fiat(code); ok {
		return f, nil
	}
	return money.Currency{}, coreerr.WithDetails(chain.ErrUnsupportedAsset, map[string]string{"asset": code})
}

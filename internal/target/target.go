// Package target models where a transfer is sent: an on-chain address, a
// trading account, a BitPay invoice, or a human-readable domain.
package target

import (
	"context"
	"strings"
	"time"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Kind identifies the target variant.
type Kind int

// Target kinds.
const (
	KindAddress Kind = iota
	KindCustodial
	KindBitPayInvoice
	KindDomain
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindCustodial:
		return "custodial"
	case KindBitPayInvoice:
		return "bitpay-invoice"
	case KindDomain:
		return "domain"
	default:
		return "unknown"
	}
}

// Target is a transfer destination.
type Target interface {
	Kind() Kind
	// Label is shown on the destination confirmation line.
	Label() string
	Currency() money.Currency
	// AccountType is Trading for custodial accounts and NonCustodial otherwise.
	AccountType() account.Type
}

// Address is a plain on-chain address with an optional memo.
type Address struct {
	Asset   money.Currency
	Address string
	Memo    string
	Name    string
}

// Kind implements Target.
func (a Address) Kind() Kind { return KindAddress }

// Label implements Target.
func (a Address) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Address
}

// Currency implements Target.
func (a Address) Currency() money.Currency { return a.Asset }

// AccountType implements Target.
func (a Address) AccountType() account.Type { return account.NonCustodial }

// Custodial is a trading account held by the backend.
type Custodial struct {
	AccountID string
	Asset     money.Currency
	Name      string
}

// Kind implements Target.
func (c Custodial) Kind() Kind { return KindCustodial }

// Label implements Target.
func (c Custodial) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Asset.Code + " Trading Account"
}

// Currency implements Target.
func (c Custodial) Currency() money.Currency { return c.Asset }

// AccountType implements Target.
func (c Custodial) AccountType() account.Type { return account.Trading }

// BitPayInvoice is a merchant invoice with a fixed amount and expiry.
type BitPayInvoice struct {
	InvoiceID string
	Asset     money.Currency
}

// Kind implements Target.
func (b BitPayInvoice) Kind() Kind { return KindBitPayInvoice }

// Label implements Target.
func (b BitPayInvoice) Label() string { return "BitPay[" + b.InvoiceID + "]" }

// Currency implements Target.
func (b BitPayInvoice) Currency() money.Currency { return b.Asset }

// AccountType implements Target.
func (b BitPayInvoice) AccountType() account.Type { return account.NonCustodial }

// Domain is a human-readable name resolved to an address by the backend.
type Domain struct {
	Name  string
	Asset money.Currency
}

// Kind implements Target.
func (d Domain) Kind() Kind { return KindDomain }

// Label implements Target.
func (d Domain) Label() string { return d.Name }

// Currency implements Target.
func (d Domain) Currency() money.Currency { return d.Asset }

// AccountType implements Target.
func (d Domain) AccountType() account.Type { return account.NonCustodial }

// Destination is a resolved target.
type Destination struct {
	Address string
	Memo    string
	// Amount is set when the target fixes the amount (invoices).
	Amount *money.Value
	// Expires is set when the target has a deadline (invoices).
	Expires time.Time
	// PaymentURL is where a signed invoice payment is posted.
	PaymentURL string
}

// Expired reports whether the destination deadline has passed.
func (d Destination) Expired(now time.Time) bool {
	return !d.Expires.IsZero() && !now.Before(d.Expires)
}

// DomainResolver resolves a domain to an address for a currency.
type DomainResolver interface {
	ResolveDomain(ctx context.Context, name string, currency money.Currency) (address, memo string, err error)
}

// InvoiceResolver fetches the payment instructions of an invoice.
type InvoiceResolver interface {
	ResolveInvoice(ctx context.Context, invoiceID string, currency money.Currency) (Destination, error)
}

// Resolvers groups the lookups needed by Resolve. Nil members reject their target kind.
type Resolvers struct {
	Domains  DomainResolver
	Invoices InvoiceResolver
}

// Resolve turns an on-chain target into a Destination. Custodial targets are
// resolved through an order, not here, and return ErrNotSupported.
func Resolve(ctx context.Context, t Target, r Resolvers) (Destination, error) {
	switch v := t.(type) {
	case Address:
		if strings.TrimSpace(v.Address) == "" {
			return Destination{}, coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{"target": v.Label()})
		}
		return Destination{Address: v.Address, Memo: v.Memo}, nil
	case Domain:
		if r.Domains == nil {
			return Destination{}, coreerr.Wrap(coreerr.ErrNotSupported, "domain resolution for %s", v.Name)
		}
		addr, memo, err := r.Domains.ResolveDomain(ctx, v.Name, v.Asset)
		if err != nil {
			return Destination{}, err
		}
		return Destination{Address: addr, Memo: memo}, nil
	case BitPayInvoice:
		if r.Invoices == nil {
			return Destination{}, coreerr.Wrap(coreerr.ErrNotSupported, "invoice %s", v.InvoiceID)
		}
		return r.Invoices.ResolveInvoice(ctx, v.InvoiceID, v.Asset)
	default:
		return Destination{}, coreerr.Wrap(coreerr.ErrNotSupported, "resolve %s target", t.Kind())
	}
}

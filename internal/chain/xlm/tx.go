package xlm

import (
	"context"
	"encoding/base64"
	"math"
	"strconv"
	"time"

	"github.com/stellar/go-stellar-sdk/amount"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/signing"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// txTimeout bounds how long a signed transaction stays valid.
const txTimeout = 5 * time.Minute

// Candidate is an unsigned single-operation transaction.
type Candidate struct {
	Tx     *txnbuild.Transaction
	Source string
}

// ChainID implements signing.Candidate.
func (c *Candidate) ChainID() chain.ID {
	return chain.XLM
}

// Builder assembles native payments and account creations.
type Builder struct {
	client *Client
	now    func() time.Time
}

// NewBuilder creates a builder over client.
func NewBuilder(client *Client) *Builder {
	return &Builder{client: client, now: time.Now}
}

// Build implements signing.Builder. FeeRate is the per-operation fee in stroops.
func (b *Builder) Build(ctx context.Context, req signing.TransferRequest) (signing.Candidate, error) {
	if err := ValidateAccountID(req.From); err != nil {
		return nil, err
	}
	if err := ValidateAccountID(req.To); err != nil {
		return nil, err
	}
	memo, err := ParseMemo(req.Memo)
	if err != nil {
		return nil, err
	}
	if req.FeeRate == nil || req.FeeRate.Sign() <= 0 || !req.FeeRate.IsInt64() || req.FeeRate.Int64() > math.MaxUint32 {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"field": "base_fee"})
	}
	stroops := req.Amount.Minor()
	if stroops.Sign() <= 0 || !stroops.IsInt64() {
		return nil, coreerr.ErrInvalidAmount
	}

	acct, err := b.client.Account(ctx, req.From)
	if err != nil {
		return nil, err
	}
	seq, err := strconv.ParseInt(acct.Sequence, 10, 64)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrNetworkError, "invalid sequence %q", acct.Sequence)
	}

	lumens := amount.StringFromInt64(stroops.Int64())
	var op txnbuild.Operation = &txnbuild.Payment{Destination: req.To, Amount: lumens, Asset: txnbuild.NativeAsset{}}
	if req.CreateAccount {
		op = &txnbuild.CreateAccount{Destination: req.To, Amount: lumens}
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: req.From, Sequence: seq},
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              req.FeeRate.Int64(),
		Memo:                 memo.txnMemo(),
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(0, b.now().Add(txTimeout).Unix()),
		},
	})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrInvalidInput, "building transaction: %v", err)
	}
	return &Candidate{Tx: tx, Source: req.From}, nil
}

// Signer signs transactions for one network.
type Signer struct {
	passphrase string
}

// NewSigner creates a signer for the network identified by passphrase.
func NewSigner(passphrase string) *Signer {
	return &Signer{passphrase: passphrase}
}

// Sign implements signing.Signer. The secret is a 32-byte ed25519 seed whose
// public key must be the transaction source.
func (s *Signer) Sign(_ context.Context, c signing.Candidate, kp *signing.KeyPair) (*signing.Signed, error) {
	cand, ok := c.(*Candidate)
	if !ok {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"candidate": string(c.ChainID())})
	}
	if kp == nil {
		return nil, coreerr.ErrKeyMismatch
	}

	full, err := FullKeypair(kp.Secret)
	if err != nil {
		return nil, coreerr.ErrKeyMismatch
	}
	if full.Address() != cand.Source {
		return nil, coreerr.WithDetails(coreerr.ErrKeyMismatch, map[string]string{"from": cand.Source})
	}

	signed, err := cand.Tx.Sign(s.passphrase, full)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "%v", err)
	}
	hash, err := signed.HashHex(s.passphrase)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "hashing transaction: %v", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "encoding envelope: %v", err)
	}

	return &signing.Signed{Chain: chain.XLM, Hash: hash, Raw: raw}, nil
}

// Broadcaster submits envelopes to Horizon.
type Broadcaster struct {
	client *Client
}

// NewBroadcaster creates a broadcaster over client.
func NewBroadcaster(client *Client) *Broadcaster {
	return &Broadcaster{client: client}
}

// Submit implements signing.Broadcaster.
func (b *Broadcaster) Submit(ctx context.Context, s *signing.Signed) (*signing.Published, error) {
	hash, err := b.client.Submit(ctx, base64.StdEncoding.EncodeToString(s.Raw))
	if err != nil {
		return nil, err
	}
	if hash == "" {
		hash = s.Hash
	}
	return &signing.Published{Chain: chain.XLM, Hash: hash, SubmittedAt: time.Now()}, nil
}

// NewPipeline wires the builder, signer, and broadcaster for one network.
func NewPipeline(client *Client, passphrase string) signing.Pipeline {
	return signing.Pipeline{
		Builder:     NewBuilder(client),
		Signer:      NewSigner(passphrase),
		Broadcaster: NewBroadcaster(client),
	}
}

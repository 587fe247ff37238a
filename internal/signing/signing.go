// Package signing defines the local-signing pipeline: key pairs, unsigned
// candidates, signers, broadcasters, and the classified signing error.
package signing

import (
	"context"
	"math/big"
	"time"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/money"
)

// KeyPair is key material held in memory for a single sign operation.
// Callers must call Zero when done.
type KeyPair struct {
	// AccountID is the address or public account id the secret controls.
	AccountID string
	Chain     chain.ID
	Secret    []byte

	release func()
}

// NewKeyPair creates a key pair. release, if non-nil, runs after the secret is zeroed
// (for example to munlock the backing memory).
func NewKeyPair(chainID chain.ID, accountID string, secret []byte, release func()) *KeyPair {
	return &KeyPair{AccountID: accountID, Chain: chainID, Secret: secret, release: release}
}

// Zero wipes the secret. It is safe to call more than once and on nil.
func (k *KeyPair) Zero() {
	if k == nil {
		return
	}
	for i := range k.Secret {
		k.Secret[i] = 0
	}
	if k.release != nil {
		k.release()
		k.release = nil
	}
	k.Secret = nil
}

// KeyPairProvider unlocks key material with the second password.
type KeyPairProvider interface {
	KeyPair(ctx context.Context, chainID chain.ID, secondPassword string) (*KeyPair, error)
}

// TransferRequest describes the on-chain transfer a Builder turns into a candidate.
type TransferRequest struct {
	Asset  chain.Asset
	From   string
	To     string
	Memo   string
	Amount money.Value
	// FeeRate is the per-unit minor price selected by the fee level.
	FeeRate *big.Int
	// Fee is the total network fee in the fee currency.
	Fee money.Value
	// CreateAccount asks ledger chains to create the destination account.
	CreateAccount bool
}

// Candidate is an unsigned, chain-specific transaction.
type Candidate interface {
	ChainID() chain.ID
}

// Builder turns a transfer request into a signable candidate.
type Builder interface {
	Build(ctx context.Context, req TransferRequest) (Candidate, error)
}

// Signed is a signed transaction ready for submission.
type Signed struct {
	Chain chain.ID
	Hash  string
	Raw   []byte
}

// Signer signs a candidate.
type Signer interface {
	Sign(ctx context.Context, c Candidate, kp *KeyPair) (*Signed, error)
}

// Published is a transaction accepted by the network.
type Published struct {
	Chain       chain.ID
	Hash        string
	SubmittedAt time.Time
}

// Broadcaster submits a signed transaction to the network.
type Broadcaster interface {
	Submit(ctx context.Context, s *Signed) (*Published, error)
}

// Pipeline groups the per-chain building blocks.
type Pipeline struct {
	Builder     Builder
	Signer      Signer
	Broadcaster Broadcaster
}

// Send signs c with kp and submits it. The key pair is always zeroed.
//
// Cancellation is honored up to submission. Once Submit is called the
// operation runs to completion on a context detached from ctx, because a
// broadcast cannot be recalled.
func Send(ctx context.Context, signer Signer, broadcaster Broadcaster, c Candidate, kp *KeyPair) (*Published, error) {
	defer kp.Zero()

	signed, err := signer.Sign(ctx, c, kp)
	if err != nil {
		return nil, Classify(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}

	published, err := broadcaster.Submit(context.WithoutCancel(ctx), signed)
	if err != nil {
		return nil, Classify(err)
	}
	return published, nil
}

package eth

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/fee"
	"github.com/mrz1836/coincore/internal/signing"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// transferSelector is keccak256("transfer(address,uint256)")[0:4].
//
//nolint:gochecknoglobals // ERC-20 constant
var transferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// Candidate is an unsigned legacy transaction with its expected sender.
type Candidate struct {
	Tx      *types.Transaction
	From    common.Address
	Network *big.Int
}

// ChainID implements signing.Candidate.
func (c *Candidate) ChainID() chain.ID {
	return chain.ETH
}

// Builder assembles ETH and ERC-20 transfers.
type Builder struct {
	node    Node
	nonces  *NonceManager
	chainID *big.Int
}

// NewBuilder creates a builder for the network identified by chainID.
func NewBuilder(node Node, nonces *NonceManager, chainID *big.Int) *Builder {
	return &Builder{node: node, nonces: nonces, chainID: chainID}
}

// Build implements signing.Builder.
func (b *Builder) Build(ctx context.Context, req signing.TransferRequest) (signing.Candidate, error) {
	from, err := ParseAddress(req.From)
	if err != nil {
		return nil, err
	}
	to, err := ParseAddress(req.To)
	if err != nil {
		return nil, err
	}
	if req.FeeRate == nil || req.FeeRate.Sign() <= 0 {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"field": "gas_price"})
	}
	if !req.Amount.IsPositive() {
		return nil, coreerr.ErrInvalidAmount
	}

	pending, err := b.node.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classifyNodeError("getting pending nonce", err)
	}
	nonce := b.nonces.Next(from.Hex(), pending)

	legacy := &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(req.FeeRate),
	}

	cur := req.Amount.Currency()
	if cur.IsToken() {
		contract, err := ParseAddress(cur.Contract)
		if err != nil {
			b.nonces.Release(from.Hex(), nonce)
			return nil, err
		}
		legacy.To = &contract
		legacy.Value = big.NewInt(0)
		legacy.Gas = fee.GasLimitTokenTransfer
		legacy.Data = transferData(to, req.Amount.Minor())
	} else {
		legacy.To = &to
		legacy.Value = req.Amount.Minor()
		legacy.Gas = fee.GasLimitTransfer
	}

	return &Candidate{Tx: types.NewTx(legacy), From: from, Network: b.chainID}, nil
}

func transferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// Signer signs candidates with EIP-155 replay protection.
type Signer struct{}

// Sign implements signing.Signer. The key must control the candidate's sender.
func (Signer) Sign(_ context.Context, c signing.Candidate, kp *signing.KeyPair) (*signing.Signed, error) {
	cand, ok := c.(*Candidate)
	if !ok {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"candidate": string(c.ChainID())})
	}
	if kp == nil || len(kp.Secret) == 0 {
		return nil, coreerr.ErrKeyMismatch
	}

	key, err := crypto.ToECDSA(kp.Secret)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "invalid private key: %v", err)
	}
	defer key.D.SetInt64(0)

	if crypto.PubkeyToAddress(key.PublicKey) != cand.From {
		return nil, coreerr.WithDetails(coreerr.ErrKeyMismatch, map[string]string{"from": cand.From.Hex()})
	}

	signed, err := types.SignTx(cand.Tx, types.NewEIP155Signer(cand.Network), key)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "%v", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "encoding transaction: %v", err)
	}

	return &signing.Signed{Chain: chain.ETH, Hash: signed.Hash().Hex(), Raw: raw}, nil
}

// Broadcaster submits raw transactions to the node.
type Broadcaster struct {
	node    Node
	nonces  *NonceManager
	chainID *big.Int
}

// NewBroadcaster creates a broadcaster. Failed submissions release their nonce.
func NewBroadcaster(node Node, nonces *NonceManager, chainID *big.Int) *Broadcaster {
	return &Broadcaster{node: node, nonces: nonces, chainID: chainID}
}

// Submit implements signing.Broadcaster.
func (b *Broadcaster) Submit(ctx context.Context, s *signing.Signed) (*signing.Published, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(s.Raw); err != nil {
		return nil, coreerr.Wrap(coreerr.ErrInvalidInput, "decoding transaction: %v", err)
	}

	if err := b.node.SendTransaction(ctx, tx); err != nil {
		if sender, serr := types.Sender(types.NewEIP155Signer(b.chainID), tx); serr == nil {
			if nonceTooLow(err) {
				// Local tracking is behind the chain; resync from the node.
				b.nonces.Reset(sender.Hex())
			} else {
				b.nonces.Release(sender.Hex(), tx.Nonce())
			}
		}
		return nil, classifyNodeError("sending transaction", err)
	}

	return &signing.Published{Chain: chain.ETH, Hash: tx.Hash().Hex(), SubmittedAt: time.Now()}, nil
}

// nonceTooLow matches the node rejection for a nonce already used on chain.
func nonceTooLow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

// NewPipeline wires a builder, signer, and broadcaster sharing one nonce manager.
func NewPipeline(node Node, chainID *big.Int) signing.Pipeline {
	nonces := NewNonceManager()
	return signing.Pipeline{
		Builder:     NewBuilder(node, nonces, chainID),
		Signer:      Signer{},
		Broadcaster: NewBroadcaster(node, nonces, chainID),
	}
}

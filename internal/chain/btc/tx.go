package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/signing"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Candidate is an unsigned transaction with the scripts of the outputs it spends.
type Candidate struct {
	Tx          *wire.MsgTx
	PrevScripts [][]byte
	PrevValues  []int64
	From        string
	Fee         uint64
}

// ChainID implements signing.Candidate.
func (c *Candidate) ChainID() chain.ID {
	return chain.BTC
}

// Builder assembles P2PKH payments from the sender's UTXO set.
type Builder struct {
	client *Client
	params *chaincfg.Params
}

// NewBuilder creates a builder for params' network.
func NewBuilder(client *Client, params *chaincfg.Params) *Builder {
	return &Builder{client: client, params: params}
}

// Build implements signing.Builder. FeeRate is in sat/vB.
func (b *Builder) Build(ctx context.Context, req signing.TransferRequest) (signing.Candidate, error) {
	from, err := DecodeAddress(req.From, b.params)
	if err != nil {
		return nil, err
	}
	if _, ok := from.(*btcutil.AddressPubKeyHash); !ok {
		return nil, coreerr.WithDetails(coreerr.ErrNotSupported, map[string]string{"from": req.From, "reason": "only P2PKH sources can be signed"})
	}
	to, err := DecodeAddress(req.To, b.params)
	if err != nil {
		return nil, err
	}
	if req.FeeRate == nil || req.FeeRate.Sign() <= 0 {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"field": "fee_rate"})
	}

	amount := minorUint64(req.Amount)
	if amount < DustLimit {
		return nil, coreerr.WithDetails(coreerr.ErrBelowMinimum, map[string]string{"dust_limit": "546"})
	}

	utxos, err := b.client.UTXOs(ctx, req.From)
	if err != nil {
		return nil, err
	}
	sel, err := SelectUTXOs(utxos, amount, req.FeeRate.Uint64())
	if err != nil {
		return nil, err
	}

	fromScript, err := txscript.PayToAddrScript(from)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrInvalidAddress, "%v", err)
	}
	toScript, err := txscript.PayToAddrScript(to)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrInvalidAddress, "%v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	cand := &Candidate{Tx: tx, From: req.From, Fee: sel.Fee}
	for _, u := range sel.Inputs {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.ErrInvalidInput, "utxo txid %q: %v", u.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
		cand.PrevScripts = append(cand.PrevScripts, fromScript)
		cand.PrevValues = append(cand.PrevValues, int64(u.Value)) //nolint:gosec // satoshi values fit int64
	}

	tx.AddTxOut(wire.NewTxOut(int64(amount), toScript)) //nolint:gosec // bounded by UTXO total
	if sel.Change > 0 {
		tx.AddTxOut(wire.NewTxOut(int64(sel.Change), fromScript)) //nolint:gosec // bounded by UTXO total
	}

	return cand, nil
}

// Signer produces P2PKH signature scripts.
type Signer struct {
	params *chaincfg.Params
}

// NewSigner creates a signer for params' network.
func NewSigner(params *chaincfg.Params) *Signer {
	return &Signer{params: params}
}

// Sign implements signing.Signer. The key must hash to the candidate's source address.
func (s *Signer) Sign(_ context.Context, c signing.Candidate, kp *signing.KeyPair) (*signing.Signed, error) {
	cand, ok := c.(*Candidate)
	if !ok {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{"candidate": string(c.ChainID())})
	}
	if kp == nil || len(kp.Secret) != btcec.PrivKeyBytesLen {
		return nil, coreerr.ErrKeyMismatch
	}

	priv, pub := btcec.PrivKeyFromBytes(kp.Secret)
	defer priv.Zero()

	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), s.params)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "%v", err)
	}
	if addr.EncodeAddress() != cand.From {
		return nil, coreerr.WithDetails(coreerr.ErrKeyMismatch, map[string]string{"from": cand.From})
	}

	tx := cand.Tx.Copy()
	for i := range tx.TxIn {
		script, err := txscript.SignatureScript(tx, i, cand.PrevScripts[i], txscript.SigHashAll, priv, true)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "input %d: %v", i, err)
		}
		tx.TxIn[i].SignatureScript = script
	}

	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return nil, coreerr.Wrap(coreerr.ErrSigningFailed, "encoding transaction: %v", err)
	}

	return &signing.Signed{Chain: chain.BTC, Hash: tx.TxHash().String(), Raw: buf.Bytes()}, nil
}

// Broadcaster posts signed transactions to Esplora.
type Broadcaster struct {
	client *Client
}

// NewBroadcaster creates a broadcaster over client.
func NewBroadcaster(client *Client) *Broadcaster {
	return &Broadcaster{client: client}
}

// Submit implements signing.Broadcaster.
func (b *Broadcaster) Submit(ctx context.Context, s *signing.Signed) (*signing.Published, error) {
	txid, err := b.client.Broadcast(ctx, hex.EncodeToString(s.Raw))
	if err != nil {
		return nil, err
	}
	if txid == "" {
		txid = s.Hash
	}
	return &signing.Published{Chain: chain.BTC, Hash: txid, SubmittedAt: time.Now()}, nil
}

// NewPipeline wires the builder, signer, and broadcaster for params' network.
func NewPipeline(client *Client, params *chaincfg.Params) signing.Pipeline {
	return signing.Pipeline{
		Builder:     NewBuilder(client, params),
		Signer:      NewSigner(params),
		Broadcaster: NewBroadcaster(client),
	}
}

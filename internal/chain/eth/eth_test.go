package eth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/signing"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

type mockNode struct {
	mu         sync.Mutex
	balance    *big.Int
	token      *big.Int
	nonce      uint64
	pending    uint64
	gasPrice   *big.Int
	gasErr     error
	sendErr    error
	sent       []*types.Transaction
	calls      []ethereum.CallMsg
	balanceErr error
}

func (m *mockNode) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return new(big.Int).Set(m.balance), nil
}

func (m *mockNode) NonceAt(_ context.Context, _ common.Address, _ *big.Int) (uint64, error) {
	return m.nonce, nil
}

func (m *mockNode) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return m.pending, nil
}

func (m *mockNode) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if m.gasErr != nil {
		return nil, m.gasErr
	}
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *mockNode) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, msg)
	m.mu.Unlock()
	return common.LeftPadBytes(m.token.Bytes(), 32), nil
}

func (m *mockNode) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, tx)
	return nil
}

func (m *mockNode) ChainID(_ context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

type nodeRejection struct {
	code int
	msg  string
}

func (e nodeRejection) Error() string  { return e.msg }
func (e nodeRejection) ErrorCode() int { return e.code }

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"lowercase", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", false},
		{"checksummed", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", false},
		{"bad checksum", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606Eb48", true},
		{"missing prefix", "a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", true},
		{"too short", "0x1234", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseAddress(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, coreerr.ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
		})
	}

	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		ChecksumAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"))
	assert.Equal(t, "nope", ChecksumAddress("nope"))
}

func TestNonceManager(t *testing.T) {
	t.Parallel()

	m := NewNonceManager()
	assert.Equal(t, uint64(5), m.Next("0xABC", 5))
	assert.Equal(t, uint64(6), m.Next("0xabc", 5), "local reservation wins over stale pending")
	assert.Equal(t, uint64(9), m.Next("0xabc", 9), "node ahead of local")

	m.Release("0xabc", 9)
	assert.Equal(t, uint64(9), m.Next("0xabc", 5))

	m.Release("0xabc", 3)
	assert.Equal(t, uint64(10), m.Next("0xabc", 5), "older reservations are not released")

	m.Reset("0xABC")
	assert.Equal(t, uint64(2), m.Next("0xabc", 2))
}

func TestFeeSource(t *testing.T) {
	t.Parallel()

	t.Run("scales suggestion", func(t *testing.T) {
		t.Parallel()
		src := NewFeeSource(&mockNode{gasPrice: gwei(50)})
		q, err := src.CurrentFee(context.Background(), money.ETH)
		require.NoError(t, err)
		assert.Equal(t, gwei(40), q.Low)
		assert.Equal(t, gwei(50), q.Regular)
		assert.Equal(t, gwei(60), q.Priority)
		assert.Equal(t, uint64(21000), q.TransferGas(money.ETH))
		assert.Equal(t, uint64(65000), q.TransferGas(money.USDC))
		assert.Equal(t, "node", q.Source)
	})

	t.Run("token currency not quoted", func(t *testing.T) {
		t.Parallel()
		_, err := NewFeeSource(&mockNode{gasPrice: gwei(1)}).CurrentFee(context.Background(), money.USDC)
		require.ErrorIs(t, err, coreerr.ErrNotSupported)
	})

	t.Run("node failure", func(t *testing.T) {
		t.Parallel()
		_, err := NewFeeSource(&mockNode{gasErr: errors.New("dial tcp: refused")}).CurrentFee(context.Background(), money.ETH)
		require.ErrorIs(t, err, coreerr.ErrNetworkError)
	})
}

func TestBalanceProvider(t *testing.T) {
	t.Parallel()

	owner := "0x52908400098527886E0F7030069857D2E4169EE7"
	node := &mockNode{
		balance: new(big.Int).Mul(big.NewInt(15), big.NewInt(100_000_000_000_000_000)),
		token:   big.NewInt(2_500_000),
		nonce:   7,
		pending: 8,
	}
	p := NewBalanceProvider(node)
	ctx := context.Background()

	ethAcct := account.Account{ID: "e", Asset: chain.Asset{Currency: money.ETH, Chain: chain.ETH}, Address: owner}
	v, err := p.SpendableBalance(ctx, ethAcct)
	require.NoError(t, err)
	assert.True(t, v.Decimal().Equal(decimal.RequireFromString("1.5")), v.String())

	usdcAcct := account.Account{ID: "u", Asset: chain.Asset{Currency: money.USDC, Chain: chain.ETH}, Address: owner}
	v, err = p.SpendableBalance(ctx, usdcAcct)
	require.NoError(t, err)
	assert.Equal(t, "USDC", v.Currency().Code)
	assert.True(t, v.Decimal().Equal(decimal.RequireFromString("2.5")), v.String())
	require.Len(t, node.calls, 1)
	assert.Equal(t, balanceOfSelector, node.calls[0].Data[:4])
	assert.Equal(t, common.HexToAddress(money.USDC.Contract), *node.calls[0].To)

	feeBal, err := p.FeeBalance(ctx, usdcAcct)
	require.NoError(t, err)
	assert.Equal(t, "ETH", feeBal.Currency().Code)

	pending, err := p.HasPendingOperation(ctx, ethAcct)
	require.NoError(t, err)
	assert.True(t, pending)

	_, err = p.SpendableBalance(ctx, account.Account{ID: "x", Asset: ethAcct.Asset, Address: "0xbad"})
	require.ErrorIs(t, err, coreerr.ErrInvalidAddress)
}

func transferRequest(t *testing.T, from common.Address, amount money.Value) signing.TransferRequest {
	t.Helper()
	asset, ok := chain.AssetFor(amount.Currency())
	require.True(t, ok)
	return signing.TransferRequest{
		Asset:   asset,
		From:    from.Hex(),
		To:      "0x52908400098527886E0F7030069857D2E4169EE7",
		Amount:  amount,
		FeeRate: gwei(30),
	}
}

func TestPipeline_ETHTransfer(t *testing.T) {
	t.Parallel()

	key, from := newKey(t)
	node := &mockNode{pending: 3}
	p := NewPipeline(node, big.NewInt(1))

	cand, err := p.Builder.Build(context.Background(), transferRequest(t, from, money.MustMajor("1.4", money.ETH)))
	require.NoError(t, err)
	assert.Equal(t, chain.ETH, cand.ChainID())

	kp := signing.NewKeyPair(chain.ETH, from.Hex(), crypto.FromECDSA(key), nil)
	pub, err := signing.Send(context.Background(), p.Signer, p.Broadcaster, cand, kp)
	require.NoError(t, err)
	assert.Nil(t, kp.Secret, "key pair zeroed after send")

	require.Len(t, node.sent, 1)
	tx := node.sent[0]
	assert.Equal(t, tx.Hash().Hex(), pub.Hash)
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, uint64(21000), tx.Gas())
	assert.Equal(t, gwei(30), tx.GasPrice())
	assert.Equal(t, money.MustMajor("1.4", money.ETH).Minor(), tx.Value())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)
}

func TestPipeline_TokenTransfer(t *testing.T) {
	t.Parallel()

	key, from := newKey(t)
	node := &mockNode{}
	p := NewPipeline(node, big.NewInt(1))

	cand, err := p.Builder.Build(context.Background(), transferRequest(t, from, money.MustMajor("2.5", money.USDC)))
	require.NoError(t, err)

	kp := signing.NewKeyPair(chain.ETH, from.Hex(), crypto.FromECDSA(key), nil)
	_, err = signing.Send(context.Background(), p.Signer, p.Broadcaster, cand, kp)
	require.NoError(t, err)

	tx := node.sent[0]
	assert.Equal(t, common.HexToAddress(money.USDC.Contract), *tx.To())
	assert.Equal(t, 0, tx.Value().Sign())
	assert.Equal(t, uint64(65000), tx.Gas())
	assert.Equal(t, transferSelector, tx.Data()[:4])
	assert.Equal(t, big.NewInt(2_500_000), new(big.Int).SetBytes(tx.Data()[36:68]))
}

func TestPipeline_KeyMismatch(t *testing.T) {
	t.Parallel()

	_, from := newKey(t)
	other, _ := newKey(t)
	node := &mockNode{}
	p := NewPipeline(node, big.NewInt(1))

	cand, err := p.Builder.Build(context.Background(), transferRequest(t, from, money.MustMajor("1", money.ETH)))
	require.NoError(t, err)

	kp := signing.NewKeyPair(chain.ETH, from.Hex(), crypto.FromECDSA(other), nil)
	_, err = signing.Send(context.Background(), p.Signer, p.Broadcaster, cand, kp)
	require.ErrorIs(t, err, coreerr.ErrKeyMismatch)
	assert.Equal(t, signing.KindKeyMismatch, signing.KindOf(err))
	assert.Empty(t, node.sent)
}

func TestPipeline_RejectedReleasesNonce(t *testing.T) {
	t.Parallel()

	key, from := newKey(t)
	node := &mockNode{pending: 4, sendErr: nodeRejection{code: -32000, msg: "insufficient funds for gas * price + value"}}
	nonces := NewNonceManager()
	chainID := big.NewInt(1)
	b := NewBuilder(node, nonces, chainID)
	bc := NewBroadcaster(node, nonces, chainID)

	cand, err := b.Build(context.Background(), transferRequest(t, from, money.MustMajor("1", money.ETH)))
	require.NoError(t, err)

	kp := signing.NewKeyPair(chain.ETH, from.Hex(), crypto.FromECDSA(key), nil)
	_, err = signing.Send(context.Background(), Signer{}, bc, cand, kp)
	require.ErrorIs(t, err, coreerr.ErrTxRejected)
	assert.Equal(t, signing.KindNetworkRejected, signing.KindOf(err))

	assert.Equal(t, uint64(4), nonces.Next(from.Hex(), 0), "failed broadcast returns its nonce")
}

func TestPipeline_NonceTooLowResyncs(t *testing.T) {
	t.Parallel()

	key, from := newKey(t)
	node := &mockNode{pending: 4, sendErr: nodeRejection{code: -32000, msg: "nonce too low: next nonce 7, tx nonce 5"}}
	nonces := NewNonceManager()
	chainID := big.NewInt(1)
	b := NewBuilder(node, nonces, chainID)
	bc := NewBroadcaster(node, nonces, chainID)

	// A local reservation ahead of the node.
	assert.Equal(t, uint64(4), nonces.Next(from.Hex(), 4))
	cand, err := b.Build(context.Background(), transferRequest(t, from, money.MustMajor("1", money.ETH)))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cand.(*Candidate).Tx.Nonce())

	kp := signing.NewKeyPair(chain.ETH, from.Hex(), crypto.FromECDSA(key), nil)
	_, err = signing.Send(context.Background(), Signer{}, bc, cand, kp)
	require.ErrorIs(t, err, coreerr.ErrTxRejected)

	assert.Equal(t, uint64(2), nonces.Next(from.Hex(), 2), "local tracking is dropped")
}

func TestBuild_Validation(t *testing.T) {
	t.Parallel()

	_, from := newKey(t)
	b := NewBuilder(&mockNode{}, NewNonceManager(), big.NewInt(1))

	req := transferRequest(t, from, money.MustMajor("1", money.ETH))
	req.FeeRate = nil
	_, err := b.Build(context.Background(), req)
	require.ErrorIs(t, err, coreerr.ErrInvalidInput)

	req = transferRequest(t, from, money.Zero(money.ETH))
	_, err = b.Build(context.Background(), req)
	require.ErrorIs(t, err, coreerr.ErrInvalidAmount)

	req = transferRequest(t, from, money.MustMajor("1", money.ETH))
	req.To = "0xnope"
	_, err = b.Build(context.Background(), req)
	require.ErrorIs(t, err, coreerr.ErrInvalidAddress)
}

func TestClassifyNodeError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, classifyNodeError("op", nil))
	assert.ErrorIs(t, classifyNodeError("op", context.Canceled), context.Canceled)
	assert.ErrorIs(t, classifyNodeError("op", nodeRejection{code: -32000, msg: "nonce too low"}), coreerr.ErrTxRejected)
	assert.ErrorIs(t, classifyNodeError("op", errors.New("eof")), coreerr.ErrNetworkError)

	_, err := Dial(context.Background(), "")
	require.ErrorIs(t, err, ErrRPCURLRequired)
}

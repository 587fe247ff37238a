package xlm

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/strkey"
	"github.com/stellar/go-stellar-sdk/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/chain"
	"github.com/mrz1836/coincore/internal/money"
	"github.com/mrz1836/coincore/internal/signing"
	"github.com/mrz1836/coincore/internal/transport"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// horizon is a minimal in-memory Horizon.
type horizon struct {
	mu        sync.Mutex
	accounts  map[string]string
	reserve   int64
	feeStats  string
	submitted []string
	reject    string
}

func (h *horizon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/accounts/"):
		body, ok := h.accounts[strings.TrimPrefix(r.URL.Path, "/accounts/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	case r.URL.Path == "/ledgers":
		_, _ = w.Write([]byte(`{"_embedded":{"records":[{"sequence":5000,"base_fee_in_stroops":100,"base_reserve_in_stroops":` +
			big.NewInt(h.reserve).String() + `}]}}`))
	case r.URL.Path == "/fee_stats":
		_, _ = w.Write([]byte(h.feeStats))
	case r.URL.Path == "/transactions" && r.Method == http.MethodPost:
		_ = r.ParseForm()
		if h.reject != "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(h.reject))
			return
		}
		h.submitted = append(h.submitted, r.PostForm.Get("tx"))
		_, _ = w.Write([]byte(`{"hash":"abc123"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	hc, err := transport.New("horizon", server.URL, &transport.Options{
		RateLimiter: chain.NewRateLimiter(1000, 1000),
		Retry:       &chain.RetryConfig{MaxAttempts: 1},
	})
	require.NoError(t, err)
	return NewClient(hc)
}

func newKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, strkey.MustEncode(strkey.VersionByteAccountID, pub)
}

func accountJSON(id, seq, bal string, subentries int) string {
	return `{"account_id":"` + id + `","sequence":"` + seq + `","subentry_count":` + big.NewInt(int64(subentries)).String() +
		`,"balances":[{"asset_type":"credit_alphanum4","balance":"10.0"},{"asset_type":"native","balance":"` + bal + `"}]}`
}

func TestStrkey(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidAccountID("GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"))

	priv, id := newKey(t)
	require.NoError(t, ValidateAccountID(id))

	seed := EncodeSeed(priv.Seed())
	assert.True(t, strings.HasPrefix(seed, "S"))
	raw, err := DecodeSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, []byte(priv.Seed()), raw)

	kp, err := FullKeypair(raw)
	require.NoError(t, err)
	assert.Equal(t, id, kp.Address())
	assert.Equal(t, seed, kp.Seed())

	require.ErrorIs(t, ValidateAccountID(seed), coreerr.ErrInvalidAddress, "seed is not an account id")
	_, err = DecodeSeed(id)
	require.ErrorIs(t, err, coreerr.ErrInvalidInput)
	_, err = FullKeypair(raw[:16])
	require.ErrorIs(t, err, coreerr.ErrKeyMismatch)

	last := "A"
	if strings.HasSuffix(id, "A") {
		last = "B"
	}
	assert.False(t, IsValidAccountID(id[:len(id)-1]+last), "checksum mismatch")
	assert.False(t, IsValidAccountID("GABC"))
}

func TestParseMemo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Memo
		wantErr bool
	}{
		{input: "", want: Memo{}},
		{input: "1234567890", want: Memo{Type: MemoID, ID: 1234567890}},
		{input: "invoice 42", want: Memo{Type: MemoText, Text: "invoice 42"}},
		{input: "99999999999999999999", want: Memo{Type: MemoText, Text: "99999999999999999999"}},
		{input: strings.Repeat("x", 28), want: Memo{Type: MemoText, Text: strings.Repeat("x", 28)}},
		{input: strings.Repeat("x", 29), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMemo(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, coreerr.ErrInvalidMemo)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.input, got.String())
		})
	}
}

func TestFeeSource(t *testing.T) {
	t.Parallel()

	h := &horizon{feeStats: `{"last_ledger_base_fee":"100","fee_charged":{"p10":"100","p50":"100","p90":"250"}}`}
	q, err := NewFeeSource(newTestClient(t, h)).CurrentFee(context.Background(), money.XLM)
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.Regular.Int64())
	assert.Equal(t, int64(250), q.Priority.Int64())
	assert.Equal(t, "horizon", q.Source)

	bad := &horizon{feeStats: `{"last_ledger_base_fee":""}`}
	_, err = NewFeeSource(newTestClient(t, bad)).CurrentFee(context.Background(), money.XLM)
	require.ErrorIs(t, err, coreerr.ErrNetworkError)

	_, err = NewFeeSource(newTestClient(t, h)).CurrentFee(context.Background(), money.BTC)
	require.ErrorIs(t, err, coreerr.ErrNotSupported)
}

func TestBalanceProvider(t *testing.T) {
	t.Parallel()

	_, funded := newKey(t)
	_, unfunded := newKey(t)
	h := &horizon{
		reserve:  10_000_000,
		accounts: map[string]string{funded: accountJSON(funded, "100", "1.5000000", 3)},
	}
	p := NewBalanceProvider(newTestClient(t, h))
	ctx := context.Background()
	asset := chain.Asset{Currency: money.XLM, Chain: chain.XLM}

	bal, err := p.SpendableBalance(ctx, account.Account{ID: "a", Asset: asset, Address: funded})
	require.NoError(t, err)
	assert.Equal(t, "1.5 XLM", bal.String())

	bal, err = p.SpendableBalance(ctx, account.Account{ID: "b", Asset: asset, Address: unfunded})
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	res, err := p.AccountReserve(ctx, funded)
	require.NoError(t, err)
	assert.True(t, res.Funded)
	assert.Equal(t, 3, res.Subentries)
	assert.Equal(t, "5 XLM", res.Minimum().String())

	res, err = p.AccountReserve(ctx, unfunded)
	require.NoError(t, err)
	assert.False(t, res.Funded)
	assert.Equal(t, int64(20_000_000), res.CreateAccountMinimum().MinorInt64())

	pending, err := p.HasPendingOperation(ctx, account.Account{})
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestPipeline_SubmitsSignedEnvelope(t *testing.T) {
	t.Parallel()

	priv, from := newKey(t)
	_, to := newKey(t)
	h := &horizon{accounts: map[string]string{from: accountJSON(from, "4294967296", "100", 0)}}
	client := newTestClient(t, h)
	p := NewPipeline(client, TestNetworkPassphrase)
	p.Builder.(*Builder).now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	cand, err := p.Builder.Build(context.Background(), signing.TransferRequest{
		Asset:         chain.Asset{Currency: money.XLM, Chain: chain.XLM},
		From:          from,
		To:            to,
		Memo:          "42",
		Amount:        money.MustMajor("2.5", money.XLM),
		FeeRate:       big.NewInt(100),
		CreateAccount: true,
	})
	require.NoError(t, err)
	xc := cand.(*Candidate)
	assert.Equal(t, int64(4294967297), xc.Tx.SequenceNumber())
	assert.Equal(t, int64(1_700_000_300), xc.Tx.Timebounds().MaxTime)
	assert.Equal(t, txnbuild.MemoID(42), xc.Tx.Memo())
	ops := xc.Tx.Operations()
	require.Len(t, ops, 1)
	create, ok := ops[0].(*txnbuild.CreateAccount)
	require.True(t, ok)
	assert.Equal(t, to, create.Destination)
	assert.Equal(t, "2.5000000", create.Amount)

	kp := signing.NewKeyPair(chain.XLM, from, append([]byte(nil), priv.Seed()...), nil)
	pub, err := signing.Send(context.Background(), p.Signer, p.Broadcaster, cand, kp)
	require.NoError(t, err)
	assert.Equal(t, "abc123", pub.Hash)
	require.Len(t, h.submitted, 1)

	generic, err := txnbuild.TransactionFromXDR(h.submitted[0])
	require.NoError(t, err)
	sent, ok := generic.Transaction()
	require.True(t, ok)
	assert.Equal(t, from, sent.SourceAccount().AccountID)
	assert.Equal(t, int64(100), sent.BaseFee())
	require.Len(t, sent.Signatures(), 1)

	hash, err := sent.Hash(TestNetworkPassphrase)
	require.NoError(t, err)
	signer, err := keypair.ParseAddress(from)
	require.NoError(t, err)
	require.NoError(t, signer.Verify(hash[:], sent.Signatures()[0].Signature))
}

func TestPipeline_Payment(t *testing.T) {
	t.Parallel()

	_, from := newKey(t)
	_, to := newKey(t)
	h := &horizon{accounts: map[string]string{from: accountJSON(from, "10", "100", 0)}}
	b := NewBuilder(newTestClient(t, h))

	cand, err := b.Build(context.Background(), signing.TransferRequest{
		From: from, To: to, Memo: "invoice 42", Amount: money.NewFromMinorInt64(1, money.XLM), FeeRate: big.NewInt(200),
	})
	require.NoError(t, err)
	tx := cand.(*Candidate).Tx
	assert.Equal(t, int64(11), tx.SequenceNumber())
	assert.Equal(t, int64(200), tx.BaseFee())
	assert.Equal(t, txnbuild.MemoText("invoice 42"), tx.Memo())

	payment, ok := tx.Operations()[0].(*txnbuild.Payment)
	require.True(t, ok)
	assert.Equal(t, to, payment.Destination)
	assert.Equal(t, "0.0000001", payment.Amount)
	assert.True(t, payment.Asset.IsNative())
}

func TestPipeline_KeyMismatch(t *testing.T) {
	t.Parallel()

	_, from := newKey(t)
	other, _ := newKey(t)
	_, to := newKey(t)
	h := &horizon{accounts: map[string]string{from: accountJSON(from, "1", "100", 0)}}
	p := NewPipeline(newTestClient(t, h), TestNetworkPassphrase)

	cand, err := p.Builder.Build(context.Background(), signing.TransferRequest{
		From: from, To: to, Amount: money.MustMajor("1", money.XLM), FeeRate: big.NewInt(100),
	})
	require.NoError(t, err)

	_, err = signing.Send(context.Background(), p.Signer, p.Broadcaster, cand, signing.NewKeyPair(chain.XLM, from, other.Seed(), nil))
	require.ErrorIs(t, err, coreerr.ErrKeyMismatch)
	assert.Equal(t, signing.KindKeyMismatch, signing.KindOf(err))
	assert.Empty(t, h.submitted)
}

func TestPipeline_Rejected(t *testing.T) {
	t.Parallel()

	priv, from := newKey(t)
	_, to := newKey(t)
	h := &horizon{
		accounts: map[string]string{from: accountJSON(from, "1", "100", 0)},
		reject:   `{"title":"Transaction Failed","extras":{"result_codes":{"transaction":"tx_failed","operations":["op_no_destination"]}}}`,
	}
	p := NewPipeline(newTestClient(t, h), TestNetworkPassphrase)

	cand, err := p.Builder.Build(context.Background(), signing.TransferRequest{
		From: from, To: to, Amount: money.MustMajor("1", money.XLM), FeeRate: big.NewInt(100),
	})
	require.NoError(t, err)

	_, err = signing.Send(context.Background(), p.Signer, p.Broadcaster, cand, signing.NewKeyPair(chain.XLM, from, priv.Seed(), nil))
	require.ErrorIs(t, err, coreerr.ErrTxRejected)
	var ce *coreerr.CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "op_no_destination", ce.Details["operations"])
}

func TestBuild_Validation(t *testing.T) {
	t.Parallel()

	_, from := newKey(t)
	_, to := newKey(t)
	b := NewBuilder(newTestClient(t, &horizon{}))
	ctx := context.Background()

	_, err := b.Build(ctx, signing.TransferRequest{From: from, To: "GBAD", Amount: money.MustMajor("1", money.XLM), FeeRate: big.NewInt(100)})
	require.ErrorIs(t, err, coreerr.ErrInvalidAddress)

	_, err = b.Build(ctx, signing.TransferRequest{From: from, To: to, Memo: strings.Repeat("m", 40), Amount: money.MustMajor("1", money.XLM), FeeRate: big.NewInt(100)})
	require.ErrorIs(t, err, coreerr.ErrInvalidMemo)

	_, err = b.Build(ctx, signing.TransferRequest{From: from, To: to, Amount: money.Zero(money.XLM), FeeRate: big.NewInt(100)})
	require.ErrorIs(t, err, coreerr.ErrInvalidAmount)

	_, err = b.Build(ctx, signing.TransferRequest{From: from, To: to, Amount: money.MustMajor("1", money.XLM), FeeRate: big.NewInt(100)})
	require.ErrorIs(t, err, coreerr.ErrNotFound, "unfunded source")
}

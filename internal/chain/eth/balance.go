package eth

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/coincore/internal/account"
	"github.com/mrz1836/coincore/internal/money"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// balanceOfSelector is keccak256("balanceOf(address)")[0:4].
//
//nolint:gochecknoglobals // ERC-20 constant
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// BalanceProvider reads ETH and ERC-20 balances and the pending-nonce state.
type BalanceProvider struct {
	node Node
}

// NewBalanceProvider creates a provider over node.
func NewBalanceProvider(node Node) *BalanceProvider {
	return &BalanceProvider{node: node}
}

// SpendableBalance returns the confirmed ETH balance or the token balance.
func (p *BalanceProvider) SpendableBalance(ctx context.Context, acct account.Account) (money.Value, error) {
	owner, err := ParseAddress(acct.Address)
	if err != nil {
		return money.Value{}, err
	}

	cur := acct.Currency()
	if !cur.IsToken() {
		wei, err := p.node.BalanceAt(ctx, owner, nil)
		if err != nil {
			return money.Value{}, classifyNodeError("getting balance", err)
		}
		return money.NewFromMinor(wei, cur), nil
	}

	units, err := p.tokenBalance(ctx, owner, cur.Contract)
	if err != nil {
		return money.Value{}, err
	}
	return money.NewFromMinor(units, cur), nil
}

// FeeBalance returns the ETH balance that pays gas for a token account.
func (p *BalanceProvider) FeeBalance(ctx context.Context, acct account.Account) (money.Value, error) {
	owner, err := ParseAddress(acct.Address)
	if err != nil {
		return money.Value{}, err
	}
	wei, err := p.node.BalanceAt(ctx, owner, nil)
	if err != nil {
		return money.Value{}, classifyNodeError("getting balance", err)
	}
	return money.NewFromMinor(wei, money.ETH), nil
}

// HasPendingOperation reports a sent transaction that is not mined yet:
// the pending nonce is ahead of the latest confirmed nonce.
func (p *BalanceProvider) HasPendingOperation(ctx context.Context, acct account.Account) (bool, error) {
	owner, err := ParseAddress(acct.Address)
	if err != nil {
		return false, err
	}
	pending, err := p.node.PendingNonceAt(ctx, owner)
	if err != nil {
		return false, classifyNodeError("getting pending nonce", err)
	}
	latest, err := p.node.NonceAt(ctx, owner, nil)
	if err != nil {
		return false, classifyNodeError("getting nonce", err)
	}
	return pending > latest, nil
}

func (p *BalanceProvider) tokenBalance(ctx context.Context, owner common.Address, contract string) (*big.Int, error) {
	token, err := ParseAddress(contract)
	if err != nil {
		return nil, coreerr.WithDetails(coreerr.ErrInvalidAddress, map[string]string{"token": contract})
	}

	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	result, err := p.node.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, classifyNodeError("calling balanceOf", err)
	}
	if len(result) < 32 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(result[:32]), nil
}

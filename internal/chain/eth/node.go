// Package eth implements the account-based route on Ethereum: the node
// client, gas fee source, balance provider, nonce tracking, and the
// EIP-155 build/sign/broadcast pipeline for ETH and ERC-20 transfers.
package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// ErrRPCURLRequired indicates the RPC URL was not provided.
var ErrRPCURLRequired = &coreerr.CoreError{
	Code:     "ETH_RPC_URL_REQUIRED",
	Message:  "RPC URL is required",
	ExitCode: coreerr.ExitInput,
}

// Node is the subset of the JSON-RPC node API the route uses.
// *ethclient.Client satisfies it.
type Node interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

var _ Node = (*ethclient.Client)(nil)

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, ErrRPCURLRequired
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrNetworkError, "connecting to %s: %v", rpcURL, err)
	}
	return client, nil
}

// rpcError is the error shape returned by the node for rejected requests.
type rpcError interface {
	error
	ErrorCode() int
}

// classifyNodeError separates node-side rejections from transport failures.
func classifyNodeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rerr rpcError
	if errors.As(err, &rerr) {
		return &coreerr.CoreError{
			Code:     coreerr.ErrTxRejected.Code,
			Message:  fmt.Sprintf("%s: %s", op, rerr.Error()),
			Details:  map[string]string{"rpc_code": fmt.Sprint(rerr.ErrorCode())},
			Cause:    err,
			ExitCode: coreerr.ErrTxRejected.ExitCode,
		}
	}
	return &coreerr.CoreError{
		Code:     coreerr.ErrNetworkError.Code,
		Message:  op,
		Cause:    err,
		ExitCode: coreerr.ErrNetworkError.ExitCode,
	}
}

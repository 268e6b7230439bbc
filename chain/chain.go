// Package chain provides the multi-chain abstraction layer.
package chain

import (
	"context"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
)

// LogSource reads event logs from a chain.
type LogSource interface {
	// ID returns the chain identifier used to tag logs (e.g. "ethereum", "base").
	ID() string

	// LatestBlock returns the most recent block number.
	LatestBlock(ctx context.Context) (uint64, error)

	// FetchLogs retrieves historical event logs matching the given query.
	FetchLogs(ctx context.Context, query filter.Query) ([]event.Log, error)

	// Subscribe establishes a real-time subscription for new event logs.
	// Transports that cannot stream return an error wrapping
	// transport.ErrSubscriptionsUnsupported.
	Subscribe(ctx context.Context, query filter.Query) (Subscription, error)
}

// Caller executes read-only contract calls.
type Caller interface {
	// CallContract runs msg against the state at block (nil means latest).
	CallContract(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error)
}

// Sender is what a signer needs to price, submit and confirm a transaction.
type Sender interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// BaseFee returns the latest block's base fee, or nil before London.
	BaseFee(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	// TransactionReceipt returns geth.NotFound while the transaction is pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Chain is the full surface fathom needs from one EVM-compatible network.
type Chain interface {
	LogSource
	Caller
	Sender
}

// Subscription represents an active real-time event subscription.
type Subscription interface {
	// Logs returns a channel that receives incoming event logs.
	Logs() <-chan event.Log

	// Err returns a channel that receives subscription errors.
	// The channel is closed when the subscription ends.
	Err() <-chan error

	// Unsubscribe terminates the subscription and closes all channels.
	Unsubscribe()
}

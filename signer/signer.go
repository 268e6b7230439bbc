// Package signer submits contract calls as signed EIP-1559 transactions and
// waits for their receipts.
package signer

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned by WaitForReceipt when the transaction was mined
// with a failed status. The receipt is still returned.
var ErrReverted = errors.New("signer: transaction reverted")

// Call describes a state-changing contract call.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int

	// GasLimit overrides estimation when non-zero.
	GasLimit uint64
}

// Wallet submits transactions on behalf of one account.
type Wallet interface {
	// From returns the account transactions are sent from.
	From() common.Address

	// SendTransaction signs and broadcasts call, returning the transaction hash.
	SendTransaction(ctx context.Context, call Call) (common.Hash, error)

	// WaitForReceipt blocks until the transaction is mined or ctx is done.
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

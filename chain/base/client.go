// Package base provides a Base chain client.
package base

import (
	"github.com/hedeqiang/fathom/chain/ethereum"
)

// ChainID is the EIP-155 chain id of Base mainnet.
const ChainID = 8453

// New creates a Base chain client.
func New(rpcURL string, opts ...ethereum.Option) *ethereum.Client {
	return ethereum.NewWithID("base", rpcURL, opts...)
}

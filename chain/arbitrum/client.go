// Package arbitrum provides an Arbitrum One chain client.
package arbitrum

import (
	"github.com/hedeqiang/fathom/chain/ethereum"
)

// ChainID is the EIP-155 chain id of Arbitrum One.
const ChainID = 42161

// New creates an Arbitrum chain client.
func New(rpcURL string, opts ...ethereum.Option) *ethereum.Client {
	return ethereum.NewWithID("arbitrum", rpcURL, opts...)
}

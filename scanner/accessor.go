package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	geth "github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/retry"
	"github.com/hedeqiang/fathom/transport"
)

// errEmptyReturn is what a call to an account without code looks like.
var errEmptyReturn = errors.New("scanner: empty return data")

const accessorABI = `[{"type":"function","name":%q,"stateMutability":"view",` +
	`"inputs":[{"name":"index","type":"uint256"}],` +
	`"outputs":[{"name":"","type":"address"}]}]`

type accessorOptions struct {
	strategy retry.Strategy
	block    *big.Int
}

// AccessorOption configures ContractAccessor.
type AccessorOption func(*accessorOptions)

// WithRetry sets the retry policy for each eth_call. Defaults to retry.Default().
func WithRetry(s retry.Strategy) AccessorOption {
	return func(o *accessorOptions) { o.strategy = s }
}

// AtBlock pins every call to block. Enumerating at a fixed block keeps the
// length and the elements consistent while the array grows.
func AtBlock(block *big.Int) AccessorOption {
	return func(o *accessorOptions) { o.block = block }
}

// ContractAccessor returns an Accessor calling method(uint256) returns
// (address) on contract. Transport failures are retried; a revert is final
// and is what marks the end of the array.
func ContractAccessor(caller chain.Caller, contract common.Address, method string, opts ...AccessorOption) (Accessor, error) {
	o := accessorOptions{strategy: retry.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	parsed, err := gethabi.JSON(strings.NewReader(fmt.Sprintf(accessorABI, method)))
	if err != nil {
		return nil, fmt.Errorf("scanner: build abi for %q: %w", method, err)
	}

	return func(ctx context.Context, index uint64) (common.Address, error) {
		data, err := parsed.Pack(method, new(big.Int).SetUint64(index))
		if err != nil {
			return common.Address{}, retry.Terminal(err)
		}
		return retry.Call(ctx, o.strategy, func(ctx context.Context) (common.Address, error) {
			out, err := caller.CallContract(ctx, geth.CallMsg{To: &contract, Data: data}, o.block)
			if err != nil {
				if transport.IsRevert(err) {
					return common.Address{}, retry.Terminal(err)
				}
				return common.Address{}, err
			}
			if len(out) == 0 {
				return common.Address{}, retry.Terminal(errEmptyReturn)
			}
			vals, err := parsed.Unpack(method, out)
			if err != nil {
				return common.Address{}, retry.Terminal(fmt.Errorf("scanner: unpack %s(%d): %w", method, index, err))
			}
			addr, ok := vals[0].(common.Address)
			if !ok {
				return common.Address{}, retry.Terminal(fmt.Errorf("scanner: %s(%d) returned %T", method, index, vals[0]))
			}
			return addr, nil
		})
	}, nil
}

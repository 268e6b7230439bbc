// Package ethereum provides the Ethereum implementation of the chain.Chain
// interface. Every EVM-compatible network reuses it with a different ID.
package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	"github.com/hedeqiang/fathom/transport"
)

var _ chain.Chain = (*Client)(nil)

// Client is an Ethereum chain implementation.
type Client struct {
	id        string
	transport transport.Transport
}

// Option configures a Client built from a URL.
type Option func(*clientOptions)

type clientOptions struct {
	limit   *transport.LimitConfig
	headers map[string]string
}

// WithHeaders sets HTTP headers on every request. Ignored for ws:// URLs.
func WithHeaders(h map[string]string) Option {
	return func(o *clientOptions) {
		o.headers = h
	}
}

// WithRateLimit wraps the transport in a transport.Limited.
func WithRateLimit(cfg transport.LimitConfig) Option {
	return func(o *clientOptions) {
		o.limit = &cfg
	}
}

// New creates an Ethereum client with the given RPC endpoint.
func New(rpcURL string, opts ...Option) *Client {
	return NewWithID("ethereum", rpcURL, opts...)
}

// NewWithID creates an Ethereum-compatible client with a custom chain ID.
// ws:// and wss:// URLs get a streaming transport.
func NewWithID(id, rpcURL string, opts ...Option) *Client {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	var t transport.Transport
	if strings.HasPrefix(rpcURL, "ws://") || strings.HasPrefix(rpcURL, "wss://") {
		t = transport.NewWebSocket(rpcURL)
	} else {
		var hopts []transport.HTTPOption
		for k, v := range o.headers {
			hopts = append(hopts, transport.WithHeader(k, v))
		}
		t = transport.NewHTTP(rpcURL, hopts...)
	}
	if o.limit != nil {
		t = transport.NewLimited(t, id, *o.limit)
	}
	return NewWithTransport(id, t)
}

// NewWithTransport creates an Ethereum client with a custom transport.
func NewWithTransport(id string, t transport.Transport) *Client {
	return &Client{
		id:        id,
		transport: t,
	}
}

// ID returns the chain identifier.
func (c *Client) ID() string {
	return c.id
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// call runs method and decodes the result into out.
func (c *Client) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	result, err := c.transport.Call(ctx, method, params...)
	if err != nil {
		return fmt.Errorf("ethereum: %s: %w", method, err)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("ethereum: %s: decode result: %w", method, err)
	}
	return nil
}

// LatestBlock returns the latest block number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// FetchLogs retrieves historical logs matching the query.
func (c *Client) FetchLogs(ctx context.Context, query filter.Query) ([]event.Log, error) {
	var raw []types.Log
	if err := c.call(ctx, &raw, "eth_getLogs", buildFilterParams(query)); err != nil {
		return nil, err
	}

	logs := make([]event.Log, len(raw))
	for i, rl := range raw {
		logs[i] = event.FromTypesLog(c.id, rl)
	}
	return logs, nil
}

// Subscribe creates a real-time log subscription via WebSocket.
func (c *Client) Subscribe(ctx context.Context, query filter.Query) (chain.Subscription, error) {
	params := buildFilterParams(query)
	delete(params, "fromBlock")
	delete(params, "toBlock")

	ch, unsub, err := c.transport.Subscribe(ctx, "eth_subscribe", "logs", params)
	if err != nil {
		return nil, fmt.Errorf("ethereum: subscribe: %w", err)
	}

	return newLogStream(c.id, ch, unsub), nil
}

// CallContract executes an eth_call.
func (c *Client) CallContract(ctx context.Context, msg geth.CallMsg, block *big.Int) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.call(ctx, &out, "eth_call", toCallArg(msg), blockTag(block)); err != nil {
		return nil, err
	}
	return out, nil
}

// ChainID returns the EIP-155 chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := c.call(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

// PendingNonceAt returns the next nonce for account, counting pending transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "eth_getTransactionCount", account, "pending"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// SuggestGasPrice returns the node's legacy gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var p hexutil.Big
	if err := c.call(ctx, &p, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return (*big.Int)(&p), nil
}

// SuggestGasTipCap returns the node's priority fee suggestion.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var p hexutil.Big
	if err := c.call(ctx, &p, "eth_maxPriorityFeePerGas"); err != nil {
		return nil, err
	}
	return (*big.Int)(&p), nil
}

// BaseFee returns the base fee of the latest block, or nil if the chain has none.
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	var head *struct {
		BaseFee *hexutil.Big `json:"baseFeePerGas"`
	}
	if err := c.call(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("ethereum: eth_getBlockByNumber: %w", geth.NotFound)
	}
	if head.BaseFee == nil {
		return nil, nil
	}
	return head.BaseFee.ToInt(), nil
}

// EstimateGas estimates the gas msg would use.
func (c *Client) EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "eth_estimateGas", toCallArg(msg)); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// SendRawTransaction broadcasts a signed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("ethereum: encode transaction: %w", err)
	}
	var hash common.Hash
	if err := c.call(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(data)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var r *types.Receipt
	if err := c.call(ctx, &r, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, geth.NotFound
	}
	return r, nil
}

// buildFilterParams converts a Query into the JSON-RPC filter object.
func buildFilterParams(query filter.Query) map[string]interface{} {
	params := make(map[string]interface{})

	if query.FromBlock != nil {
		params["fromBlock"] = hexutil.Uint64(*query.FromBlock)
	}
	if query.ToBlock != nil {
		params["toBlock"] = hexutil.Uint64(*query.ToBlock)
	}

	switch len(query.Addresses) {
	case 0:
	case 1:
		params["address"] = query.Addresses[0]
	default:
		params["address"] = query.Addresses
	}

	if len(query.Topics) > 0 {
		topics := make([]interface{}, len(query.Topics))
		for i, ts := range query.Topics {
			switch len(ts) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = ts[0]
			default:
				topics[i] = ts
			}
		}
		params["topics"] = topics
	}

	return params
}

func toCallArg(msg geth.CallMsg) map[string]interface{} {
	arg := map[string]interface{}{
		"from": msg.From,
		"to":   msg.To,
	}
	if len(msg.Data) > 0 {
		arg["input"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	if msg.GasFeeCap != nil {
		arg["maxFeePerGas"] = (*hexutil.Big)(msg.GasFeeCap)
	}
	if msg.GasTipCap != nil {
		arg["maxPriorityFeePerGas"] = (*hexutil.Big)(msg.GasTipCap)
	}
	return arg
}

func blockTag(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}

// Package transport provides JSON-RPC transport layer abstractions.
package transport

import (
	"context"
	"encoding/json"
)

// Transport sends JSON-RPC requests and returns raw responses.
type Transport interface {
	// Call sends a JSON-RPC request and returns the result bytes.
	Call(ctx context.Context, method string, params ...interface{}) ([]byte, error)

	// Subscribe establishes a streaming subscription (WebSocket only).
	// Returns a channel of raw notification payloads and an unsubscribe function.
	// The channel is closed when the subscription or the connection ends.
	Subscribe(ctx context.Context, method string, params ...interface{}) (<-chan []byte, func(), error)

	// Close terminates the transport connection.
	Close() error
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

func newRequest(id uint64, method string, params []interface{}) jsonRPCRequest {
	if params == nil {
		params = []interface{}{}
	}
	return jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

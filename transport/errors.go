package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned for calls on a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrSubscriptionsUnsupported is returned by transports that cannot stream.
	ErrSubscriptionsUnsupported = errors.New("transport: subscriptions not supported")
)

// revertCode is the JSON-RPC error code geth-compatible nodes use for
// "execution reverted".
const revertCode = 3

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error: code=%d message=%s", e.Code, e.Message)
}

// StatusError is returned when the endpoint answers with a non-200 HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport/http: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRevert reports whether err is the node telling us the call reverted,
// as opposed to the node being unreachable.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == revertCode {
			return true
		}
		return strings.Contains(strings.ToLower(rpcErr.Message), "revert")
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// Classify buckets an RPC error into a short status label for metrics.
func Classify(err error) string {
	if err == nil {
		return "ok"
	}
	if IsRevert(err) {
		return "revert"
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 429:
			return "rate_limited"
		case statusErr.StatusCode >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code <= -32000 && rpcErr.Code >= -32099 {
			return "server_error"
		}
		return "client_error"
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timed out"):
		return "timeout"
	case strings.Contains(lower, "circuit breaker"):
		return "circuit_open"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "eof") || strings.Contains(lower, "connection closed"):
		return "network_error"
	default:
		return "client_error"
	}
}

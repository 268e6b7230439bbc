package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// maxResponseSize caps a single JSON-RPC response body. Large
	// eth_getLogs pages stay well below it.
	maxResponseSize = 64 << 20
)

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithHeader adds a header to every request, e.g. a provider API key.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) { h.header.Set(key, value) }
}

// HTTP implements Transport over HTTP JSON-RPC. It is safe for concurrent use.
type HTTP struct {
	url    string
	client *http.Client
	header http.Header
	nextID atomic.Uint64
}

// NewHTTP creates an HTTP transport targeting the given JSON-RPC endpoint.
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
		header: http.Header{"Content-Type": []string{"application/json"}},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Call posts one JSON-RPC request and returns its result.
func (h *HTTP) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	id := h.nextID.Add(1)
	body, err := json.Marshal(newRequest(id, method, params))
	if err != nil {
		return nil, fmt.Errorf("transport/http: encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport/http: build %s: %w", method, err)
	}
	req.Header = h.header.Clone()

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport/http: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("transport/http: read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(raw)}
	}

	var out jsonRPCResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("transport/http: decode %s response %q: %w", method, snippet(raw), err)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	if out.ID != id {
		return nil, fmt.Errorf("transport/http: %s: response id %d, want %d", method, out.ID, id)
	}
	return out.Result, nil
}

// Subscribe always fails: plain HTTP cannot push notifications.
func (h *HTTP) Subscribe(context.Context, string, ...interface{}) (<-chan []byte, func(), error) {
	return nil, nil, ErrSubscriptionsUnsupported
}

// Close is a no-op.
func (h *HTTP) Close() error { return nil }

func snippet(b []byte) string {
	if len(b) > 256 {
		b = b[:256]
	}
	return string(b)
}

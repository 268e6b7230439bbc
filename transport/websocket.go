package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	subscriptionBuffer = 64
	// notifications that arrive before the subscribe response is processed
	maxBacklog = 64
)

// WebSocket implements Transport over a WebSocket connection.
type WebSocket struct {
	url    string
	conn   *websocket.Conn
	mu     sync.Mutex
	nextID atomic.Uint64

	// connection management
	connOnce sync.Once
	connErr  error

	subMu     sync.Mutex
	calls     map[uint64]chan []byte
	subs      map[string]chan []byte
	backlog   map[string][][]byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewWebSocket creates a WebSocket transport.
// The connection is established lazily on the first Call or Subscribe.
func NewWebSocket(url string) *WebSocket {
	return &WebSocket{
		url:     url,
		calls:   make(map[uint64]chan []byte),
		subs:    make(map[string]chan []byte),
		backlog: make(map[string][][]byte),
		closed:  make(chan struct{}),
	}
}

// connect establishes the WebSocket connection (called lazily, at most once).
func (ws *WebSocket) connect(ctx context.Context) error {
	ws.connOnce.Do(func() {
		dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
		conn, _, err := dialer.DialContext(ctx, ws.url, nil)
		if err != nil {
			ws.connErr = fmt.Errorf("transport/ws: dial: %w", err)
			return
		}
		ws.conn = conn
		go ws.readLoop()
	})
	return ws.connErr
}

// Call sends a JSON-RPC request over WebSocket and waits for the response.
func (ws *WebSocket) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	if err := ws.connect(ctx); err != nil {
		return nil, err
	}

	id := ws.nextID.Add(1)
	req := newRequest(id, method, params)

	ch := make(chan []byte, 1)
	ws.subMu.Lock()
	ws.calls[id] = ch
	ws.subMu.Unlock()

	defer func() {
		ws.subMu.Lock()
		delete(ws.calls, id)
		ws.subMu.Unlock()
	}()

	ws.mu.Lock()
	err := ws.conn.WriteJSON(req)
	ws.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("transport/ws: write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-ch:
		var rpcResp jsonRPCResponse
		if err := json.Unmarshal(data, &rpcResp); err != nil {
			return nil, fmt.Errorf("transport/ws: unmarshal: %w", err)
		}
		if rpcResp.Error != nil {
			return nil, rpcResp.Error
		}
		return rpcResp.Result, nil
	case <-ws.closed:
		return nil, fmt.Errorf("transport/ws: %w", ErrClosed)
	}
}

// Subscribe sends a subscription request and returns a channel carrying the
// params object of every eth_subscription notification for that subscription.
func (ws *WebSocket) Subscribe(ctx context.Context, method string, params ...interface{}) (<-chan []byte, func(), error) {
	result, err := ws.Call(ctx, method, params...)
	if err != nil {
		return nil, nil, err
	}

	var subID string
	if err := json.Unmarshal(result, &subID); err != nil {
		return nil, nil, fmt.Errorf("transport/ws: parse subscription id: %w", err)
	}

	ch := make(chan []byte, subscriptionBuffer)

	ws.subMu.Lock()
	select {
	case <-ws.closed:
		ws.subMu.Unlock()
		return nil, nil, fmt.Errorf("transport/ws: %w", ErrClosed)
	default:
	}
	for _, msg := range ws.backlog[subID] {
		ch <- msg
	}
	delete(ws.backlog, subID)
	ws.subs[subID] = ch
	ws.subMu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			ws.subMu.Lock()
			if c, ok := ws.subs[subID]; ok {
				delete(ws.subs, subID)
				close(c)
			}
			ws.subMu.Unlock()

			select {
			case <-ws.closed:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, _ = ws.Call(ctx, "eth_unsubscribe", subID)
		})
	}

	return ch, unsub, nil
}

// Close terminates the WebSocket connection and ends all subscriptions.
func (ws *WebSocket) Close() error {
	ws.shutdown()
	if ws.conn != nil {
		return ws.conn.Close()
	}
	return nil
}

func (ws *WebSocket) shutdown() {
	ws.closeOnce.Do(func() {
		close(ws.closed)
		ws.subMu.Lock()
		for id, ch := range ws.subs {
			delete(ws.subs, id)
			close(ch)
		}
		ws.subMu.Unlock()
	})
}

type wsEnvelope struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wsNotification struct {
	Subscription string `json:"subscription"`
}

// readLoop reads messages from the WebSocket and routes them to waiting callers.
func (ws *WebSocket) readLoop() {
	for {
		select {
		case <-ws.closed:
			return
		default:
		}

		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			ws.shutdown()
			return
		}

		var envelope wsEnvelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			continue
		}

		if envelope.Method == "eth_subscription" {
			ws.routeNotification(envelope.Params)
			continue
		}

		if envelope.ID != 0 {
			ws.subMu.Lock()
			if ch, ok := ws.calls[envelope.ID]; ok {
				select {
				case ch <- message:
				default:
				}
			}
			ws.subMu.Unlock()
		}
	}
}

func (ws *WebSocket) routeNotification(params json.RawMessage) {
	var n wsNotification
	if err := json.Unmarshal(params, &n); err != nil || n.Subscription == "" {
		return
	}

	ws.subMu.Lock()
	defer ws.subMu.Unlock()

	ch, ok := ws.subs[n.Subscription]
	if !ok {
		pending, known := ws.backlog[n.Subscription]
		if !known && len(ws.backlog) >= maxBacklog {
			return
		}
		if len(pending) < maxBacklog {
			ws.backlog[n.Subscription] = append(ws.backlog[n.Subscription], []byte(params))
		}
		return
	}
	select {
	case ch <- []byte(params):
	default:
		// slow consumer, drop
	}
}

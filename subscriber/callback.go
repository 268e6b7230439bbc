package subscriber

import (
	"sync/atomic"

	"github.com/hedeqiang/fathom/event"
)

// CallbackFunc is the function signature for event callbacks.
type CallbackFunc func(event.Log)

// Callback delivers event logs by invoking a callback function on the
// sender's goroutine.
type Callback struct {
	fn     CallbackFunc
	closed atomic.Bool
}

// NewCallback creates a callback-based subscriber.
func NewCallback(fn CallbackFunc) *Callback {
	return &Callback{fn: fn}
}

// Send invokes the callback with the log. No-op if closed.
func (c *Callback) Send(log event.Log) {
	if c.closed.Load() {
		return
	}
	c.fn(log)
}

// Close stops further deliveries. A callback already running is not
// interrupted, and the callback itself may call Close.
func (c *Callback) Close() {
	c.closed.Store(true)
}

package subscriber

import (
	"sync"
	"sync/atomic"

	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/metrics"
)

// Channel delivers event logs through a Go channel.
type Channel struct {
	mu      sync.RWMutex
	ch      chan event.Log
	closed  bool
	dropped atomic.Uint64
}

// NewChannel creates a channel-based subscriber with the given buffer size.
func NewChannel(bufSize int) *Channel {
	if bufSize <= 0 {
		bufSize = 128
	}
	return &Channel{
		ch: make(chan event.Log, bufSize),
	}
}

// Logs returns the channel to read events from. It is closed by Close.
func (c *Channel) Logs() <-chan event.Log {
	return c.ch
}

// Send delivers a log to the channel. Drops the log if the channel is full.
func (c *Channel) Send(log event.Log) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- log:
	default:
		c.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues(log.Chain).Inc()
	}
}

// Dropped returns how many logs were discarded because the reader lagged.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

// Close shuts down the subscriber and closes the Logs channel.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

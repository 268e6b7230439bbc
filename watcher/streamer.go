package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/filter"
)

// ErrStreamClosed is returned by Streamer.Watch when the node or transport
// ends the subscription.
var ErrStreamClosed = errors.New("streamer: subscription closed")

// Streamer monitors a chain via WebSocket subscriptions for real-time event delivery.
type Streamer struct {
	lifecycle
	chain chain.LogSource
	query filter.Query
}

// NewStreamer creates a streaming watcher for the given chain.
func NewStreamer(c chain.LogSource, query filter.Query) *Streamer {
	return &Streamer{
		chain: c,
		query: query,
	}
}

// Watch starts the streaming subscription. Blocks until ctx is done, Stop is
// called, or the subscription ends. Subscribe failures are returned so the
// caller can fall back to polling.
func (s *Streamer) Watch(ctx context.Context) error {
	ctx, done := s.start(ctx)
	defer done()

	sub, err := s.chain.Subscribe(ctx, s.query)
	if err != nil {
		return fmt.Errorf("streamer: subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	errs := sub.Err()
	for {
		select {
		case <-ctx.Done():
			return nil
		case log, ok := <-sub.Logs():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrStreamClosed
			}
			s.emitEvent(log)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.emitError(err)
		}
	}
}

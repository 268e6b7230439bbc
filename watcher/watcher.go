// Package watcher provides event log monitoring implementations.
package watcher

import (
	"context"
	"sync"

	"github.com/hedeqiang/fathom/event"
)

// Watcher monitors a blockchain for event logs.
type Watcher interface {
	// Watch begins monitoring for events. Blocks until ctx is cancelled,
	// Stop is called, or the source fails. Returns nil on graceful stop.
	Watch(ctx context.Context) error

	// Stop gracefully shuts down the watcher and waits for Watch to return.
	Stop() error

	// OnEvent registers a callback invoked for each received event log.
	OnEvent(fn func(event.Log))

	// OnError registers a callback invoked when a recoverable error occurs.
	OnError(fn func(error))
}

// lifecycle holds the callback and stop plumbing shared by every watcher.
type lifecycle struct {
	mu      sync.Mutex
	onEvent func(event.Log)
	onError func(error)
	cancel  context.CancelFunc
	stopped chan struct{}
}

// OnEvent registers a callback for received events.
func (l *lifecycle) OnEvent(fn func(event.Log)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEvent = fn
}

// OnError registers a callback for errors.
func (l *lifecycle) OnError(fn func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onError = fn
}

// start derives the run context; the returned func must be deferred by Watch.
func (l *lifecycle) start(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stopped := make(chan struct{})
	l.mu.Lock()
	l.cancel = cancel
	l.stopped = stopped
	l.mu.Unlock()
	return ctx, func() {
		cancel()
		close(stopped)
	}
}

// Stop cancels a running Watch and waits for it to return.
func (l *lifecycle) Stop() error {
	l.mu.Lock()
	cancel, stopped := l.cancel, l.stopped
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
	return nil
}

func (l *lifecycle) emitEvent(log event.Log) {
	l.mu.Lock()
	fn := l.onEvent
	l.mu.Unlock()
	if fn != nil {
		fn(log)
	}
}

func (l *lifecycle) emitError(err error) {
	l.mu.Lock()
	fn := l.onError
	l.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Package hub shares one upstream log source per (chain, query) between any
// number of subscribers.
//
// The first Subscribe for a query starts a source: a WebSocket stream when
// the chain supports it, otherwise (or once the stream fails) a poller that
// resumes after the last block the stream delivered. Every log runs through
// the middleware chain once and is then fanned out. The source stops when
// its last subscriber leaves.
package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/cursor"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	"github.com/hedeqiang/fathom/internal/syncutil"
	"github.com/hedeqiang/fathom/metrics"
	"github.com/hedeqiang/fathom/middleware"
	"github.com/hedeqiang/fathom/subscriber"
	"github.com/hedeqiang/fathom/watcher"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("hub: closed")

// Hub multiplexes log sources.
type Hub struct {
	logger      zerolog.Logger
	cursor      cursor.Cursor
	poller      watcher.PollerConfig
	middlewares []middleware.Middleware
	streaming   bool

	group *syncutil.Group

	mu      sync.Mutex
	sources map[string]*source
	closed  bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithCursor sets a cursor shared by all polling sources, so a restarted
// source resumes where the previous one stopped. By default every source
// starts at the head with its own in-memory cursor.
func WithCursor(c cursor.Cursor) Option {
	return func(h *Hub) { h.cursor = c }
}

// WithPollerConfig sets the configuration of polling sources.
func WithPollerConfig(cfg watcher.PollerConfig) Option {
	return func(h *Hub) { h.poller = cfg }
}

// WithMiddleware appends middleware applied to every log before fan-out.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(h *Hub) { h.middlewares = append(h.middlewares, mw...) }
}

// WithoutStreaming forces polling sources even on WebSocket chains.
func WithoutStreaming() Option {
	return func(h *Hub) { h.streaming = false }
}

// New creates a Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		logger:    zerolog.Nop(),
		poller:    watcher.DefaultPollerConfig(),
		streaming: true,
		group:     syncutil.NewGroup(context.Background()),
		sources:   make(map[string]*source),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("component", "hub").Logger()
	return h
}

// Subscribe delivers every log from c matching query to sub until the
// returned function is called. The function is idempotent and safe to call
// from inside sub's own delivery.
func (h *Hub) Subscribe(c chain.LogSource, query filter.Query, sub subscriber.Subscriber) (func(), error) {
	// block bounds select history, which a live source never serves
	query.FromBlock, query.ToBlock = nil, nil
	key := c.ID() + "/" + query.Key()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	src, ok := h.sources[key]
	if !ok {
		src = h.newSource(key, c, query)
		if !h.group.Go(src.run) {
			src.cancel()
			return nil, ErrClosed
		}
		h.sources[key] = src
		metrics.HubSources.WithLabelValues(c.ID()).Inc()
		h.logger.Debug().Str("source", key).Msg("Source started")
	}
	src.refs++
	src.broadcast.Add(sub)

	var once sync.Once
	return func() {
		once.Do(func() { h.release(src, sub) })
	}, nil
}

// Sources returns the number of running sources.
func (h *Hub) Sources() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sources)
}

// Close stops every source and waits for them to exit or ctx to expire.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	sources := h.sources
	h.sources = make(map[string]*source)
	h.mu.Unlock()

	for _, src := range sources {
		src.broadcast.Close()
		metrics.HubSources.WithLabelValues(src.chain.ID()).Dec()
	}
	return h.group.Stop(ctx)
}

func (h *Hub) release(src *source, sub subscriber.Subscriber) {
	src.broadcast.Remove(sub)

	h.mu.Lock()
	defer h.mu.Unlock()
	src.refs--
	if src.refs > 0 {
		return
	}
	// Close may already have taken the source over
	if cur, ok := h.sources[src.key]; ok && cur == src {
		delete(h.sources, src.key)
		metrics.HubSources.WithLabelValues(src.chain.ID()).Dec()
		h.logger.Debug().Str("source", src.key).Msg("Source stopped")
	}
	src.cancel()
}

type source struct {
	key       string
	chain     chain.LogSource
	query     filter.Query
	broadcast *subscriber.Broadcast
	handler   middleware.Handler
	refs      int // guarded by hub.mu

	ctx    context.Context
	cancel context.CancelFunc

	hub       *Hub
	lastBlock uint64
	sawBlock  bool
}

func (h *Hub) newSource(key string, c chain.LogSource, query filter.Query) *source {
	ctx, cancel := context.WithCancel(h.group.Context())
	src := &source{
		key:       key,
		chain:     c,
		query:     query,
		broadcast: subscriber.NewBroadcast(),
		ctx:       ctx,
		cancel:    cancel,
		hub:       h,
	}
	counter := metrics.HubEventsTotal.WithLabelValues(c.ID())
	src.handler = middleware.Chain(middleware.Terminal(func(log event.Log) {
		counter.Inc()
		src.broadcast.Send(log)
	}), h.middlewares...)
	return src
}

// run drives the source until it is released or the hub closes.
func (s *source) run(_ context.Context) {
	defer s.cancel()
	logger := s.hub.logger.With().Str("source", s.key).Logger()

	if s.hub.streaming {
		st := watcher.NewStreamer(s.chain, s.query)
		st.OnEvent(s.deliver)
		st.OnError(func(err error) {
			logger.Warn().Err(err).Msg("Stream error")
		})
		err := st.Watch(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		logger.Info().Err(err).Msg("Streaming unavailable, falling back to polling")
	}

	cfg := s.hub.poller
	if s.sawBlock {
		// re-read the last streamed block; dedupe middleware drops repeats
		from := s.lastBlock
		cfg.StartBlock = &from
	}
	cur := s.hub.cursor
	if cur == nil {
		cur = cursor.NewMemory()
	}
	p := watcher.NewPoller(s.chain, s.query, cur, cfg)
	p.OnEvent(s.deliver)
	p.OnError(func(err error) {
		logger.Warn().Err(err).Msg("Poll failed")
	})
	if err := p.Watch(s.ctx); err != nil {
		logger.Error().Err(err).Msg("Poller stopped")
	}
}

func (s *source) deliver(log event.Log) {
	if log.BlockNumber > s.lastBlock || !s.sawBlock {
		s.lastBlock, s.sawBlock = log.BlockNumber, true
	}
	s.handler(log)
}

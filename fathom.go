// Package fathom is an SDK for EVM chains that measures and enumerates
// on-chain arrays exposing only a per-index accessor, and tracks oracle
// requests from submission to their asynchronous fulfillment.
//
// Usage:
//
//	f := fathom.New(fathom.WithLogger(logger))
//	f.AddChain(base.New("https://mainnet.base.org"))
//
//	entrants, err := f.Entrants(ctx, "base", raffle, "entrants")
//
//	t, err := f.NewTracker("base", plinko, tracker.PlinkoSpec())
//	req, err := t.Track(ctx, wallet, signer.Call{To: plinko, Data: data, Value: stake})
//	record, err := req.Wait(ctx)
package fathom

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/cursor"
	"github.com/hedeqiang/fathom/decoder"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	"github.com/hedeqiang/fathom/hub"
	"github.com/hedeqiang/fathom/middleware"
	"github.com/hedeqiang/fathom/retry"
	"github.com/hedeqiang/fathom/scanner"
	"github.com/hedeqiang/fathom/signer"
	"github.com/hedeqiang/fathom/subscriber"
	"github.com/hedeqiang/fathom/tracker"
)

// Fathom is the SDK entry point.
type Fathom struct {
	registry    *chain.Registry
	cursor      cursor.Cursor
	retry       retry.Strategy
	decoder     *decoder.ABIDecoder
	middlewares []middleware.Middleware
	config      Config
	logger      zerolog.Logger

	hub     *hub.Hub
	scanner *scanner.Scanner

	mu       sync.Mutex
	trackers []*tracker.Tracker
	shutdown bool
}

// New creates a Fathom instance.
func New(opts ...Option) *Fathom {
	f := &Fathom{
		registry: chain.NewRegistry(),
		retry:    retry.Default(),
		config:   DefaultConfig(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Level(f.config.level())

	poller := f.config.Poller
	poller.Retry = f.retry
	hubOpts := []hub.Option{
		hub.WithLogger(f.logger),
		hub.WithPollerConfig(poller),
		// a stream falling back to polling re-reads its last block
		hub.WithMiddleware(middleware.NewDedupe(f.config.DedupeSize, 0)),
	}
	if f.cursor != nil {
		hubOpts = append(hubOpts, hub.WithCursor(f.cursor))
	}
	f.hub = hub.New(hubOpts...)
	f.scanner = scanner.New(scanner.WithConfig(f.config.Scanner), scanner.WithLogger(f.logger))
	return f
}

// AddChain registers a chain. It fails if the chain ID is already registered.
func (f *Fathom) AddChain(c chain.Chain) error {
	if err := f.registry.Register(c); err != nil {
		return fmt.Errorf("fathom: %w", err)
	}
	f.logger.Debug().Str("chain", c.ID()).Msg("Chain registered")
	return nil
}

// Chains returns the IDs of all registered chains.
func (f *Fathom) Chains() []string {
	return f.registry.IDs()
}

// Use appends middleware applied to handlers passed to Watch. Must be
// called before Watch.
func (f *Fathom) Use(mw ...middleware.Middleware) {
	f.middlewares = append(f.middlewares, mw...)
}

func (f *Fathom) chain(chainID string) (chain.Chain, error) {
	f.mu.Lock()
	shutdown := f.shutdown
	f.mu.Unlock()
	if shutdown {
		return nil, ErrShutdown
	}
	c, ok := f.registry.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, chainID)
	}
	return c, nil
}

// Watch delivers every log on chainID matching query to handler, through
// the middleware added with Use, until the returned function is called.
// Watches with the same query share one upstream subscription.
func (f *Fathom) Watch(chainID string, query filter.Query, handler func(event.Log)) (func(), error) {
	c, err := f.chain(chainID)
	if err != nil {
		return nil, err
	}
	h := middleware.Chain(middleware.Terminal(handler), f.middlewares...)
	stop, err := f.hub.Subscribe(c, query, subscriber.NewCallback(func(log event.Log) { h(log) }))
	if errors.Is(err, hub.ErrClosed) {
		return nil, ErrShutdown
	}
	return stop, err
}

// WatchAll watches every registered chain with the same query and handler.
func (f *Fathom) WatchAll(query filter.Query, handler func(event.Log)) (func(), error) {
	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}
	for _, id := range f.registry.IDs() {
		stop, err := f.Watch(id, query, handler)
		if err != nil {
			stopAll()
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stopAll, nil
}

// RegisterEvent registers a human-readable event signature for WatchDecoded.
// Example: "BetSettled(uint64 seq, address indexed player, uint256 payout)"
func (f *Fathom) RegisterEvent(signature string) error {
	return f.ensureDecoder().Register(signature)
}

// RegisterEventJSON registers every event of a JSON ABI for WatchDecoded.
func (f *Fathom) RegisterEventJSON(jsonABI []byte) error {
	return f.ensureDecoder().RegisterJSON(jsonABI)
}

func (f *Fathom) ensureDecoder() *decoder.ABIDecoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decoder == nil {
		f.decoder = decoder.NewABIDecoder()
	}
	return f.decoder
}

// WatchDecoded is Watch for registered events. Logs that do not decode are
// skipped.
func (f *Fathom) WatchDecoded(chainID string, query filter.Query, handler func(*decoder.DecodedEvent)) (func(), error) {
	f.mu.Lock()
	dec := f.decoder
	f.mu.Unlock()
	if dec == nil {
		return nil, ErrNoDecoder
	}
	return f.Watch(chainID, query, func(log event.Log) {
		decoded, err := dec.Decode(log)
		if err != nil {
			return
		}
		handler(decoded)
	})
}

// Length measures the array behind method(uint256) returns (address) on
// contract.
func (f *Fathom) Length(ctx context.Context, chainID string, contract common.Address, method string) (scanner.ScanResult, error) {
	c, err := f.chain(chainID)
	if err != nil {
		return scanner.ScanResult{}, err
	}
	access, err := scanner.ContractAccessor(c, contract, method, scanner.WithRetry(f.retry))
	if err != nil {
		return scanner.ScanResult{}, err
	}
	return f.scanner.Length(ctx, access)
}

// Entrants returns every element of the array behind method(uint256)
// returns (address) on contract, read at a single block.
func (f *Fathom) Entrants(ctx context.Context, chainID string, contract common.Address, method string) ([]common.Address, error) {
	c, err := f.chain(chainID)
	if err != nil {
		return nil, err
	}
	head, err := retry.Call(ctx, f.retry, c.LatestBlock)
	if err != nil {
		return nil, fmt.Errorf("fathom: latest block on %s: %w", chainID, err)
	}
	access, err := scanner.ContractAccessor(c, contract, method,
		scanner.WithRetry(f.retry),
		scanner.AtBlock(new(big.Int).SetUint64(head)),
	)
	if err != nil {
		return nil, err
	}
	return f.scanner.Enumerate(ctx, access)
}

// NewTracker creates a request tracker for contract on chainID. Its event
// subscriptions go through the shared hub and end with Shutdown.
func (f *Fathom) NewTracker(chainID string, contract common.Address, spec tracker.EventSpec, opts ...tracker.Option) (*tracker.Tracker, error) {
	c, err := f.chain(chainID)
	if err != nil {
		return nil, err
	}
	opts = append([]tracker.Option{
		tracker.WithConfig(f.config.Tracker),
		tracker.WithLogger(f.logger),
	}, opts...)
	t, err := tracker.New(c, f.hub, contract, spec, opts...)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shutdown {
		return nil, ErrShutdown
	}
	f.trackers = append(f.trackers, t)
	return t, nil
}

// Wallet creates a local signing wallet on chainID from a hex private key.
func (f *Fathom) Wallet(chainID, hexKey string) (*signer.Local, error) {
	c, err := f.chain(chainID)
	if err != nil {
		return nil, err
	}
	return signer.NewLocalFromHex(c, hexKey,
		signer.WithConfig(f.config.Signer),
		signer.WithLogger(f.logger),
	)
}

// Shutdown closes every tracker, then every watch, waiting for background
// work to stop or ctx to expire.
func (f *Fathom) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	f.shutdown = true
	trackers := f.trackers
	f.trackers = nil
	f.mu.Unlock()

	var errs []error
	for _, t := range trackers {
		errs = append(errs, t.Close(ctx))
	}
	errs = append(errs, f.hub.Close(ctx))
	return errors.Join(errs...)
}

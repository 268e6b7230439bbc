// Package tracker correlates oracle requests sent from this process with
// their asynchronous on-chain fulfillment.
//
// Track submits the request transaction through a wallet and returns a
// Request that resolves exactly once: Settled with the fulfillment's
// payload, or TimedOut. The correlation key (sequence number) is learned
// from the request's receipt, from the live event stream or from a replay
// of the blocks since the receipt, whichever comes first. Until it is known
// a fulfillment for the same requester is accepted on its address alone.
//
// Each requester has at most one active request. Tracking a new one
// abandons the older request, whose eventual settlement is logged as lost.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/decoder"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	"github.com/hedeqiang/fathom/hub"
	"github.com/hedeqiang/fathom/internal/cache"
	"github.com/hedeqiang/fathom/internal/syncutil"
	"github.com/hedeqiang/fathom/metrics"
	"github.com/hedeqiang/fathom/signer"
	"github.com/hedeqiang/fathom/subscriber"
)

// maxOrphans bounds how many abandoned requests are remembered for
// lost-settlement reporting.
const maxOrphans = 64

// Config holds the tracker's budgets.
type Config struct {
	// Interval × Attempts is the time a request waits for its fulfillment.
	Interval time.Duration `yaml:"interval"`
	Attempts int           `yaml:"attempts"`

	// Backfill replays the blocks since the request's receipt, catching
	// events the live stream delivered before the request was known.
	Backfill  bool   `yaml:"backfill"`
	BatchSize uint64 `yaml:"batch_size"`

	// SeenSize bounds the cache of fulfillment logs that already resolved a
	// request.
	SeenSize int `yaml:"seen_size"`
}

// DefaultConfig waits 2s × 30 and backfills.
func DefaultConfig() Config {
	return Config{
		Interval:  2 * time.Second,
		Attempts:  30,
		Backfill:  true,
		BatchSize: 2000,
		SeenSize:  1024,
	}
}

// Timeout returns the total wait budget.
func (c Config) Timeout() time.Duration {
	return c.Interval * time.Duration(max(c.Attempts, 1))
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfig replaces the configuration.
func WithConfig(cfg Config) Option {
	return func(t *Tracker) { t.cfg = cfg }
}

// WithTimeout sets the wait budget to interval × attempts.
func WithTimeout(interval time.Duration, attempts int) Option {
	return func(t *Tracker) {
		t.cfg.Interval = interval
		t.cfg.Attempts = attempts
	}
}

// WithFulfillmentContract sets the contract emitting the fulfilled event
// when it is not the one the request is sent to.
func WithFulfillmentContract(addr common.Address) Option {
	return func(t *Tracker) { t.fulfiller = addr }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// Tracker tracks requests against one contract on one chain.
type Tracker struct {
	source    chain.LogSource
	hub       *hub.Hub
	spec      *compiled
	contract  common.Address
	fulfiller common.Address
	cfg       Config
	logger    zerolog.Logger

	group *syncutil.Group

	mu      sync.Mutex
	active  map[common.Address]*Request
	orphans []*Request
	seen    *cache.LRU[event.Key, struct{}]
	closed  bool

	// one subscription per (contract, event), taken by the first Track
	// and held until Close
	subMu     sync.Mutex
	subClosed bool
	unsubs    []func()
}

// New creates a Tracker for requests sent to contract on source. Events
// are received through h, which shares one subscription per event with
// every other consumer of the same query.
func New(source chain.LogSource, h *hub.Hub, contract common.Address, spec EventSpec, opts ...Option) (*Tracker, error) {
	c, err := spec.compile()
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		source:    source,
		hub:       h,
		spec:      c,
		contract:  contract,
		fulfiller: contract,
		cfg:       DefaultConfig(),
		logger:    zerolog.Nop(),
		group:     syncutil.NewGroup(context.Background()),
		active:    make(map[common.Address]*Request),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cfg.SeenSize <= 0 {
		t.cfg.SeenSize = DefaultConfig().SeenSize
	}
	t.seen = cache.NewLRU[event.Key, struct{}](t.cfg.SeenSize, 0)
	t.logger = t.logger.With().
		Str("component", "tracker").
		Str("chain", source.ID()).
		Str("contract", contract.Hex()).
		Logger()
	return t, nil
}

// Track sends call through w and tracks the resulting request. If sending
// fails it returns a *SubmissionError and tracks nothing. Canceling ctx
// later cancels the request.
func (t *Tracker) Track(ctx context.Context, w signer.Wallet, call signer.Call) (*Request, error) {
	requester := w.From()
	if t.isClosed() {
		return nil, ErrClosed
	}

	// subscribe before sending so no fulfillment can slip past
	if err := t.ensureSubscribed(); err != nil {
		return nil, err
	}

	hash, err := w.SendTransaction(ctx, call)
	if err != nil {
		metrics.TrackerRequestsTotal.WithLabelValues(t.source.ID(), "submission_failed").Inc()
		t.logger.Warn().Err(err).Str("requester", requester.Hex()).Msg("Request submission failed")
		return nil, &SubmissionError{Requester: requester, Err: err}
	}

	dctx, stop := context.WithCancel(t.group.Context())
	r := &Request{
		ID:          uuid.NewString(),
		Requester:   requester,
		TxHash:      hash,
		SubmittedAt: time.Now(),
		tracker:     t,
		done:        make(chan struct{}),
		stop:        stop,
		state:       Submitted,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		stop()
		return nil, ErrClosed
	}
	var superseded *Request
	if old := t.active[requester]; old != nil && t.finishLocked(old, Abandoned, nil, ErrSuperseded) {
		superseded = old
		t.orphanLocked(old)
	}
	t.active[requester] = r
	timeout := t.cfg.Timeout()
	r.timer = time.AfterFunc(timeout, func() { t.expire(r, timeout) })
	t.mu.Unlock()

	if superseded != nil {
		t.logger.Info().
			Str("request", superseded.ID).
			Str("superseded_by", r.ID).
			Str("requester", requester.Hex()).
			Msg("Request superseded")
	}

	metrics.TrackerPending.WithLabelValues(t.source.ID()).Inc()
	t.logger.Info().
		Str("request", r.ID).
		Str("requester", requester.Hex()).
		Str("tx_hash", hash.Hex()).
		Dur("timeout", timeout).
		Msg("Request submitted")

	if !t.group.Go(func(context.Context) { t.discover(dctx, w, r) }) {
		t.abandon(r, ErrClosed)
		return nil, ErrClosed
	}
	if ctx.Done() != nil {
		unwatch := context.AfterFunc(ctx, r.Cancel)
		go func() {
			<-r.done
			unwatch()
		}()
	}
	return r, nil
}

// Pending returns a snapshot of the unresolved requests.
func (t *Tracker) Pending() []PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingRequest, 0, len(t.active))
	for _, r := range t.active {
		out = append(out, r.snapshot())
	}
	return out
}

// Close abandons every pending request with ErrClosed and waits for
// background work to stop or ctx to expire.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	for _, r := range t.active {
		t.finishLocked(r, Abandoned, nil, ErrClosed)
	}
	t.mu.Unlock()

	t.subMu.Lock()
	t.subClosed = true
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
	t.subMu.Unlock()
	return t.group.Stop(ctx)
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// finishLocked moves r to a terminal state and out of the routing tables,
// so later deliveries never reach it. It reports false if r had already
// resolved.
func (t *Tracker) finishLocked(r *Request, state State, record *SettlementRecord, err error) bool {
	if r.state.Terminal() {
		return false
	}
	r.state, r.record, r.err = state, record, err
	if t.active[r.Requester] == r {
		delete(t.active, r.Requester)
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.stop()
	close(r.done)

	outcome := state.String()
	switch {
	case errors.Is(err, ErrSuperseded):
		outcome = "superseded"
	case errors.Is(err, ErrCanceled):
		outcome = "canceled"
	case errors.Is(err, ErrClosed):
		outcome = "closed"
	}
	metrics.TrackerRequestsTotal.WithLabelValues(t.source.ID(), outcome).Inc()
	metrics.TrackerPending.WithLabelValues(t.source.ID()).Dec()
	return true
}

func (t *Tracker) orphanLocked(r *Request) {
	if len(t.orphans) == maxOrphans {
		t.orphans = t.orphans[1:]
	}
	t.orphans = append(t.orphans, r)
}

func (t *Tracker) abandon(r *Request, err error) {
	t.mu.Lock()
	ok := t.finishLocked(r, Abandoned, nil, err)
	t.mu.Unlock()
	if ok {
		t.logger.Debug().Err(err).Str("request", r.ID).Msg("Request abandoned")
	}
}

func (t *Tracker) expire(r *Request, after time.Duration) {
	t.mu.Lock()
	ok := t.finishLocked(r, TimedOut, nil, &TimeoutError{Requester: r.Requester, TxHash: r.TxHash, After: after})
	key := r.key
	t.mu.Unlock()
	if ok {
		t.logger.Warn().
			Str("request", r.ID).
			Str("tx_hash", r.TxHash.Hex()).
			Stringer("key", key).
			Dur("after", after).
			Msg("Request timed out")
	}
}

// ensureSubscribed subscribes to every tracked event on first use. The
// subscriptions are shared by all requests and live until Close.
func (t *Tracker) ensureSubscribed() error {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if t.subClosed {
		return ErrClosed
	}
	if t.unsubs != nil {
		return nil
	}
	unsubs, err := t.subscribe()
	if err != nil {
		return err
	}
	t.unsubs = unsubs
	return nil
}

// queries returns one query per (contract, event).
func (t *Tracker) queries() []filter.Query {
	qs := []filter.Query{filter.NewQuery(
		filter.WithAddresses(t.fulfiller),
		filter.WithEvents(t.spec.fulfilledTopic),
	)}
	if t.spec.Submitted != "" {
		qs = append(qs, filter.NewQuery(
			filter.WithAddresses(t.contract),
			filter.WithEvents(t.spec.submittedTopic),
		))
	}
	return qs
}

func (t *Tracker) subscribe() ([]func(), error) {
	var unsubs []func()
	for _, q := range t.queries() {
		// receipts and eth_getLogs never carry removed logs; only the stream does
		sub := subscriber.NewFiltered(subscriber.NewCallback(t.onLog), filter.Canonical)
		unsub, err := t.hub.Subscribe(t.source, q, sub)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return nil, err
		}
		unsubs = append(unsubs, unsub)
	}
	return unsubs, nil
}

// onLog routes a log from any source: the live stream, a receipt or a
// backfill.
func (t *Tracker) onLog(log event.Log) {
	ev, err := t.spec.decoder.Decode(log)
	if err != nil {
		t.logger.Debug().Err(err).Str("tx_hash", log.TxHash.Hex()).Msg("Undecodable log")
		return
	}
	switch {
	case ev.Name == t.spec.Fulfilled && log.Address == t.fulfiller:
		t.onFulfilled(ev)
	case t.spec.Submitted != "" && ev.Name == t.spec.Submitted && log.Address == t.contract:
		t.onSubmitted(ev)
	}
}

// onSubmitted adopts the key of a submitted event emitted by the request's
// own transaction. Events from other transactions of the same requester
// carry someone else's key and are ignored.
func (t *Tracker) onSubmitted(ev *decoder.DecodedEvent) {
	_, _, key := t.spec.fields(ev)
	if !key.known() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var target *Request
	for _, r := range t.active {
		if r.TxHash == ev.Raw.TxHash {
			target = r
			break
		}
	}
	if target == nil || target.key.known() {
		return
	}

	target.key = key
	target.state = SequenceKnown
	t.logger.Debug().
		Str("request", target.ID).
		Stringer("key", key).
		Uint64("block", ev.Raw.BlockNumber).
		Msg("Correlation key observed")
}

func (t *Tracker) onFulfilled(ev *decoder.DecodedEvent) {
	requester, hasRequester, key := t.spec.fields(ev)
	observed := ev.Raw.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	record := &SettlementRecord{
		CorrelationKey: key.v,
		Payload:        t.spec.payload(ev),
		Event:          ev,
		Raw:            ev.Raw,
		ObservedAt:     observed,
	}

	t.mu.Lock()
	if _, dup := t.seen.Get(ev.Raw.Key()); dup {
		t.mu.Unlock()
		return
	}

	var match *Request
	for _, r := range t.active {
		if t.matches(r, requester, hasRequester, key) {
			match = r
			break
		}
	}
	if match != nil {
		t.seen.Put(ev.Raw.Key(), struct{}{})
		t.finishLocked(match, Settled, record, nil)
		t.mu.Unlock()

		latency := observed.Sub(match.SubmittedAt)
		metrics.TrackerSettleLatency.WithLabelValues(t.source.ID()).Observe(latency.Seconds())
		t.logger.Info().
			Str("request", match.ID).
			Stringer("key", key).
			Str("tx_hash", ev.Raw.TxHash.Hex()).
			Dur("latency", latency).
			Msg("Request settled")
		return
	}

	for i, r := range t.orphans {
		if t.matches(r, requester, hasRequester, key) {
			t.seen.Put(ev.Raw.Key(), struct{}{})
			t.orphans = append(t.orphans[:i], t.orphans[i+1:]...)
			t.mu.Unlock()

			t.logger.Warn().
				Str("request", r.ID).
				Str("requester", r.Requester.Hex()).
				Stringer("key", key).
				Str("tx_hash", ev.Raw.TxHash.Hex()).
				Interface("payload", record.Payload).
				Msg("Lost settlement for superseded request")
			return
		}
	}
	t.mu.Unlock()
}

// matches applies the matching policy: the requester must be equal when
// the event names one. Once the request's key is known the event must
// carry the same key; before that the requester alone decides. Without a
// requester the key alone decides.
func (t *Tracker) matches(r *Request, requester common.Address, hasRequester bool, key correlationKey) bool {
	if hasRequester && requester != r.Requester {
		return false
	}
	if r.key.known() {
		return r.key.equal(key)
	}
	return hasRequester
}

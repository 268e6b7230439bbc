package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	"github.com/hedeqiang/fathom/middleware"
	"github.com/hedeqiang/fathom/retry"
	"github.com/hedeqiang/fathom/subscriber"
	"github.com/hedeqiang/fathom/transport"
	"github.com/hedeqiang/fathom/watcher"
)

type stream struct {
	logs chan event.Log
	errs chan error
	once sync.Once
	gone chan struct{}
}

func (s *stream) Logs() <-chan event.Log { return s.logs }
func (s *stream) Err() <-chan error      { return s.errs }
func (s *stream) Unsubscribe()           { s.once.Do(func() { close(s.gone) }) }

// fakeChain streams when canStream is set, and otherwise serves logs by polling.
type fakeChain struct {
	canStream bool

	mu      sync.Mutex
	streams []*stream
	head    uint64
	logs    []event.Log
	fetches atomic.Int32
}

func (f *fakeChain) ID() string { return "test" }

func (f *fakeChain) LatestBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeChain) FetchLogs(_ context.Context, q filter.Query) ([]event.Log, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Log
	for _, l := range f.logs {
		if l.BlockNumber >= *q.FromBlock && l.BlockNumber <= *q.ToBlock && q.Match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeChain) Subscribe(context.Context, filter.Query) (chain.Subscription, error) {
	if !f.canStream {
		return nil, fmt.Errorf("fake: %w", transport.ErrSubscriptionsUnsupported)
	}
	s := &stream{logs: make(chan event.Log, 8), errs: make(chan error), gone: make(chan struct{})}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeChain) stream(t *testing.T, i int) *stream {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.streams) > i
	}, 2*time.Second, 5*time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeChain) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

var contract = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func query() filter.Query {
	return filter.NewQuery(filter.WithAddresses(contract))
}

func receive(t *testing.T, ch *subscriber.Channel) event.Log {
	t.Helper()
	select {
	case l := <-ch.Logs():
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for log")
		return event.Log{}
	}
}

func TestHub_SharesOneSourcePerQuery(t *testing.T) {
	c := &fakeChain{canStream: true}
	m := middleware.NewMetrics()
	h := New(WithMiddleware(m))
	defer h.Close(context.Background())

	a, b := subscriber.NewChannel(8), subscriber.NewChannel(8)
	unsubA, err := h.Subscribe(c, query(), a)
	require.NoError(t, err)
	unsubB, err := h.Subscribe(c, query().Between(1, 2), b)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Sources())

	s := c.stream(t, 0)
	s.logs <- event.Log{Address: contract, BlockNumber: 5}

	assert.Equal(t, uint64(5), receive(t, a).BlockNumber)
	assert.Equal(t, uint64(5), receive(t, b).BlockNumber)
	assert.Equal(t, uint64(1), m.Processed(), "middleware runs once per log, not per subscriber")
	assert.Equal(t, 1, c.streamCount())

	unsubA()
	unsubA()
	assert.Equal(t, 1, h.Sources())

	unsubB()
	assert.Equal(t, 0, h.Sources())
	select {
	case <-s.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream subscription not released")
	}
}

func TestHub_DistinctQueriesGetDistinctSources(t *testing.T) {
	c := &fakeChain{canStream: true}
	h := New()
	defer h.Close(context.Background())

	_, err := h.Subscribe(c, query(), subscriber.NewChannel(1))
	require.NoError(t, err)
	_, err = h.Subscribe(c, filter.NewQuery(filter.WithAddresses(common.HexToAddress("0xbb"))), subscriber.NewChannel(1))
	require.NoError(t, err)
	assert.Equal(t, 2, h.Sources())
}

func TestHub_PollsWhenStreamingUnsupported(t *testing.T) {
	c := &fakeChain{head: 10, logs: []event.Log{{Address: contract, BlockNumber: 10}}}
	start := uint64(0)
	h := New(WithPollerConfig(watcher.PollerConfig{
		Interval: 10 * time.Millisecond, BatchSize: 100, StartBlock: &start, Retry: retry.None,
	}))
	defer h.Close(context.Background())

	ch := subscriber.NewChannel(8)
	_, err := h.Subscribe(c, query(), ch)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), receive(t, ch).BlockNumber)
	assert.Positive(t, c.fetches.Load())
}

func TestHub_FallsBackToPollingFromLastStreamedBlock(t *testing.T) {
	c := &fakeChain{canStream: true, head: 9, logs: []event.Log{
		{Address: contract, BlockNumber: 7, LogIndex: 0},
		{Address: contract, BlockNumber: 9, LogIndex: 1},
	}}
	h := New(
		WithPollerConfig(watcher.PollerConfig{Interval: 10 * time.Millisecond, BatchSize: 100, Retry: retry.None}),
		WithMiddleware(middleware.NewDedupe(64, 0)),
	)
	defer h.Close(context.Background())

	ch := subscriber.NewChannel(8)
	_, err := h.Subscribe(c, query(), ch)
	require.NoError(t, err)

	s := c.stream(t, 0)
	s.logs <- event.Log{Address: contract, BlockNumber: 7, LogIndex: 0}
	assert.Equal(t, uint64(7), receive(t, ch).BlockNumber)

	close(s.logs)
	l := receive(t, ch)
	assert.Equal(t, uint64(9), l.BlockNumber, "block 7 is replayed by the poller but deduplicated")
}

func TestHub_UnsubscribeFromInsideDelivery(t *testing.T) {
	c := &fakeChain{canStream: true}
	h := New()
	defer h.Close(context.Background())

	var unsub func()
	delivered := make(chan struct{})
	sub := subscriber.NewCallback(func(event.Log) {
		unsub()
		close(delivered)
	})
	var err error
	unsub, err = h.Subscribe(c, query(), sub)
	require.NoError(t, err)

	c.stream(t, 0).logs <- event.Log{Address: contract}
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock delivering to a subscriber that unsubscribes itself")
	}
	assert.Equal(t, 0, h.Sources())
}

func TestHub_Close(t *testing.T) {
	c := &fakeChain{canStream: true}
	h := New()

	ch := subscriber.NewChannel(1)
	unsub, err := h.Subscribe(c, query(), ch)
	require.NoError(t, err)

	require.NoError(t, h.Close(context.Background()))
	_, ok := <-ch.Logs()
	assert.False(t, ok)
	unsub()

	_, err = h.Subscribe(c, query(), subscriber.NewChannel(1))
	assert.ErrorIs(t, err, ErrClosed)
}

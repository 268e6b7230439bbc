package tracker

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	abiutil "github.com/hedeqiang/fathom/internal/abi"
	"github.com/hedeqiang/fathom/signer"
)

type stream struct {
	query filter.Query
	logs  chan event.Log
	errs  chan error
	once  sync.Once
	gone  chan struct{}
}

func (s *stream) Logs() <-chan event.Log { return s.logs }
func (s *stream) Err() <-chan error      { return s.errs }
func (s *stream) Unsubscribe()           { s.once.Do(func() { close(s.gone) }) }

func (s *stream) live() bool {
	select {
	case <-s.gone:
		return false
	default:
		return true
	}
}

// fakeChain streams emitted logs to matching live subscriptions and serves
// its history to FetchLogs.
type fakeChain struct {
	mu      sync.Mutex
	streams []*stream
	history []event.Log
	head    uint64
}

func (f *fakeChain) ID() string { return "test" }

func (f *fakeChain) LatestBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeChain) FetchLogs(_ context.Context, q filter.Query) ([]event.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Log
	for _, l := range f.history {
		if l.BlockNumber >= *q.FromBlock && l.BlockNumber <= *q.ToBlock && q.Match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeChain) Subscribe(_ context.Context, q filter.Query) (chain.Subscription, error) {
	s := &stream{query: q, logs: make(chan event.Log, 16), errs: make(chan error), gone: make(chan struct{})}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

// liveStreams counts subscriptions not yet released.
func (f *fakeChain) liveStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, s := range f.streams {
		if s.live() {
			n++
		}
	}
	return n
}

// subscribeCalls counts every Subscribe the chain has served.
func (f *fakeChain) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeChain) waitStreams(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.liveStreams() == n }, 2*time.Second, 2*time.Millisecond)
}

// emit delivers l to every live stream whose query matches it.
func (f *fakeChain) emit(l event.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.streams {
		if s.live() && s.query.Match(l) {
			s.logs <- l
		}
	}
}

// fakeWallet hands out sequential transaction hashes and serves receipts.
type fakeWallet struct {
	from    common.Address
	sendErr error

	mu       sync.Mutex
	sent     int
	receipts map[common.Hash]*types.Receipt
}

func newWallet(hexAddr string) *fakeWallet {
	return &fakeWallet{from: common.HexToAddress(hexAddr), receipts: map[common.Hash]*types.Receipt{}}
}

func (w *fakeWallet) From() common.Address { return w.from }

func (w *fakeWallet) SendTransaction(context.Context, signer.Call) (common.Hash, error) {
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent++
	return common.BigToHash(big.NewInt(int64(0xf00 + w.sent))), nil
}

// nextHash returns the hash the next SendTransaction will produce.
func (w *fakeWallet) nextHash() common.Hash {
	w.mu.Lock()
	defer w.mu.Unlock()
	return common.BigToHash(big.NewInt(int64(0xf00 + w.sent + 1)))
}

func (w *fakeWallet) setReceipt(hash common.Hash, r *types.Receipt) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receipts[hash] = r
}

// WaitForReceipt returns a receipt registered before the send, or blocks
// until ctx ends.
func (w *fakeWallet) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	r, ok := w.receipts[hash]
	w.mu.Unlock()
	if ok {
		if r.Status == types.ReceiptStatusFailed {
			return r, signer.ErrReverted
		}
		return r, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

var errRejected = errors.New("user rejected the request")

// syncBuffer is a log sink safe for concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func sigEvent(t *testing.T, sig string) gethabi.Event {
	t.Helper()
	parsed, err := abiutil.ParseEventSignature(sig)
	require.NoError(t, err)
	ev, err := parsed.Event()
	require.NoError(t, err)
	return ev
}

func jsonEvent(t *testing.T, jsonABI, name string) gethabi.Event {
	t.Helper()
	parsed, err := gethabi.JSON(strings.NewReader(jsonABI))
	require.NoError(t, err)
	ev, ok := parsed.Events[name]
	require.True(t, ok)
	return ev
}

// logOpts places a log.
type logOpts struct {
	contract common.Address
	block    uint64
	tx       common.Hash
	index    uint
	indexed  []common.Hash
}

func encode(t *testing.T, ev gethabi.Event, o logOpts, data ...interface{}) event.Log {
	t.Helper()
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return event.Log{
		Chain:       "test",
		Address:     o.contract,
		Topics:      append([]common.Hash{ev.ID}, o.indexed...),
		Data:        packed,
		BlockNumber: o.block,
		TxHash:      o.tx,
		LogIndex:    o.index,
	}
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
)

// fakeSource serves logs from memory. failRanges makes FetchLogs fail for
// ranges starting at the given block.
type fakeSource struct {
	mu         sync.Mutex
	head       uint64
	logs       []event.Log
	ranges     [][2]uint64
	failRanges map[uint64]bool
	sub        *fakeSub
	subErr     error
}

func (f *fakeSource) ID() string { return "test" }

func (f *fakeSource) setHead(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = n
}

func (f *fakeSource) LatestBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeSource) FetchLogs(_ context.Context, q filter.Query) ([]event.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from, to := *q.FromBlock, *q.ToBlock
	f.ranges = append(f.ranges, [2]uint64{from, to})
	if f.failRanges[from] {
		return nil, errors.New("upstream unavailable")
	}
	var out []event.Log
	for _, l := range f.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to && q.Match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSource) fetched() [][2]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]uint64(nil), f.ranges...)
}

func (f *fakeSource) Subscribe(context.Context, filter.Query) (chain.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.sub, nil
}

type fakeSub struct {
	logs chan event.Log
	errs chan error
	once sync.Once
	gone chan struct{}
}

func newFakeSub() *fakeSub {
	return &fakeSub{logs: make(chan event.Log, 8), errs: make(chan error, 8), gone: make(chan struct{})}
}

func (s *fakeSub) Logs() <-chan event.Log { return s.logs }
func (s *fakeSub) Err() <-chan error      { return s.errs }
func (s *fakeSub) Unsubscribe()           { s.once.Do(func() { close(s.gone) }) }

var contract = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func logAt(block uint64) event.Log {
	return event.Log{Chain: "test", Address: contract, BlockNumber: block, LogIndex: uint(block)}
}

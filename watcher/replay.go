package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	"github.com/hedeqiang/fathom/retry"
)

// ErrUnboundedRange is returned when a Replay query lacks FromBlock or ToBlock.
var ErrUnboundedRange = errors.New("replay: both FromBlock and ToBlock must be set")

// Replay fetches historical event logs for a fixed block range and completes.
type Replay struct {
	lifecycle
	chain     chain.LogSource
	query     filter.Query
	batchSize uint64
	retry     retry.Strategy
}

// NewReplay creates a replay watcher that scans a fixed block range.
// The query must have FromBlock and ToBlock set.
func NewReplay(c chain.LogSource, query filter.Query, batchSize uint64) *Replay {
	if batchSize == 0 {
		batchSize = 2000
	}
	return &Replay{
		chain:     c,
		query:     query,
		batchSize: batchSize,
		retry:     retry.Default(),
	}
}

// WithRetry replaces the per-range retry strategy.
func (r *Replay) WithRetry(s retry.Strategy) *Replay {
	r.retry = s
	return r
}

// Watch replays historical events through the OnEvent callback. A range
// that keeps failing is reported through OnError and skipped.
func (r *Replay) Watch(ctx context.Context) error {
	ctx, done := r.start(ctx)
	defer done()

	return r.scan(ctx, func(batch event.Batch, err error) bool {
		if err != nil {
			r.emitError(err)
			return true
		}
		for _, log := range batch.Logs {
			r.emitEvent(log)
		}
		return true
	})
}

// Collect fetches the whole range and returns it as one batch. Unlike Watch
// it stops at the first range that cannot be fetched.
func (r *Replay) Collect(ctx context.Context) (event.Batch, error) {
	var out event.Batch
	var firstErr error
	err := r.scan(ctx, func(batch event.Batch, err error) bool {
		if err != nil {
			firstErr = err
			return false
		}
		out.Logs = append(out.Logs, batch.Logs...)
		return true
	})
	if err != nil {
		return event.Batch{}, err
	}
	if firstErr != nil {
		return event.Batch{}, firstErr
	}
	if ctx.Err() != nil {
		return event.Batch{}, ctx.Err()
	}
	out.FromBlock, out.ToBlock = *r.query.FromBlock, *r.query.ToBlock
	return out, nil
}

// scan walks the range in batchSize chunks, handing each to visit until it
// returns false.
func (r *Replay) scan(ctx context.Context, visit func(event.Batch, error) bool) error {
	if r.query.FromBlock == nil || r.query.ToBlock == nil {
		return ErrUnboundedRange
	}

	from, to := *r.query.FromBlock, *r.query.ToBlock
	for from <= to {
		if ctx.Err() != nil {
			return nil
		}

		batchEnd := to
		if to-from >= r.batchSize {
			batchEnd = from + r.batchSize - 1
		}

		q := r.query.Between(from, batchEnd)
		logs, err := retry.Call(ctx, r.retry, func(ctx context.Context) ([]event.Log, error) {
			return r.chain.FetchLogs(ctx, q)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			err = fmt.Errorf("replay: fetch logs [%d, %d]: %w", from, batchEnd, err)
		}
		if !visit(event.Batch{Logs: logs, FromBlock: from, ToBlock: batchEnd}, err) {
			return nil
		}

		if batchEnd == to {
			break
		}
		from = batchEnd + 1
	}
	return nil
}

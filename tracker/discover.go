package tracker

import (
	"context"
	"errors"

	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/retry"
	"github.com/hedeqiang/fathom/signer"
	"github.com/hedeqiang/fathom/watcher"
)

// discover learns the correlation key of r from its receipt, then replays
// the blocks since the receipt for events the live stream delivered before
// r was registered. It returns early once r resolves.
func (t *Tracker) discover(ctx context.Context, w signer.Wallet, r *Request) {
	receipt, err := w.WaitForReceipt(ctx, r.TxHash)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		// a reverted request can never be fulfilled, but resolving it is
		// left to the timeout
		if errors.Is(err, signer.ErrReverted) {
			t.logger.Warn().Str("request", r.ID).Str("tx_hash", r.TxHash.Hex()).Msg("Request transaction reverted")
		} else {
			t.logger.Warn().Err(err).Str("request", r.ID).Msg("Receipt unavailable")
		}
		if receipt == nil {
			return
		}
	}

	for _, l := range receipt.Logs {
		if l == nil {
			continue
		}
		t.onLog(event.FromTypesLog(t.source.ID(), *l))
	}

	if !t.cfg.Backfill || receipt.BlockNumber == nil {
		return
	}
	t.backfill(ctx, r, receipt.BlockNumber.Uint64())
}

func (t *Tracker) backfill(ctx context.Context, r *Request, from uint64) {
	head, err := retry.Call(ctx, retry.Default(), t.source.LatestBlock)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn().Err(err).Str("request", r.ID).Msg("Backfill skipped")
		}
		return
	}
	head = max(head, from)

	for _, q := range t.queries() {
		q = q.Between(from, head)
		batch, err := watcher.NewReplay(t.source, q, t.cfg.BatchSize).Collect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Warn().Err(err).Str("request", r.ID).Msg("Backfill failed")
			}
			return
		}
		for _, l := range batch.Logs {
			t.onLog(l)
		}
		t.logger.Debug().
			Str("request", r.ID).
			Str("query", q.Key()).
			Uint64("from", from).
			Uint64("blocks", batch.Blocks()).
			Int("logs", batch.Len()).
			Msg("Backfill complete")
	}
}


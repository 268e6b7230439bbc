package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/cursor"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	"github.com/hedeqiang/fathom/retry"
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Interval between polling cycles.
	Interval time.Duration `yaml:"interval"`

	// BatchSize is the maximum number of blocks to query per cycle.
	BatchSize uint64 `yaml:"batch_size"`

	// Confirmations is the number of blocks to wait for finality.
	Confirmations uint64 `yaml:"confirmations"`

	// StartBlock is where polling begins when the cursor is empty.
	// Nil starts at the safe head.
	StartBlock *uint64 `yaml:"start_block"`

	// Retry wraps every RPC made by one poll cycle. Nil makes one attempt.
	Retry retry.Strategy `yaml:"-"`
}

// DefaultPollerConfig returns sensible defaults for polling.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:      2 * time.Second,
		BatchSize:     1000,
		Confirmations: 0,
		Retry:         retry.Default(),
	}
}

// Poller monitors a chain by periodically fetching logs in block ranges.
type Poller struct {
	lifecycle
	chain  chain.LogSource
	query  filter.Query
	cursor cursor.Cursor
	config PollerConfig
}

// NewPoller creates a polling watcher for the given chain.
func NewPoller(c chain.LogSource, query filter.Query, cur cursor.Cursor, cfg PollerConfig) *Poller {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollerConfig().Interval
	}
	if cur == nil {
		cur = cursor.NewMemory()
	}
	return &Poller{
		chain:  c,
		query:  query,
		cursor: cur,
		config: cfg,
	}
}

// CursorKey identifies this poller's progress in the cursor.
func (p *Poller) CursorKey() string {
	return p.chain.ID() + "/" + p.query.Key()
}

// Watch begins polling. Blocks until ctx is done, Stop is called, or the
// start block cannot be determined.
func (p *Poller) Watch(ctx context.Context) error {
	ctx, done := p.start(ctx)
	defer done()

	fromBlock, err := p.startBlock(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// first poll runs immediately
	if err := p.poll(ctx, &fromBlock); err != nil && ctx.Err() == nil {
		p.emitError(err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.poll(ctx, &fromBlock); err != nil && ctx.Err() == nil {
				p.emitError(err)
			}
		}
	}
}

func (p *Poller) startBlock(ctx context.Context) (uint64, error) {
	lastBlock, ok, err := p.cursor.Load(p.CursorKey())
	if err != nil {
		return 0, fmt.Errorf("poller: load cursor: %w", err)
	}
	if ok {
		return lastBlock + 1, nil
	}
	if p.config.StartBlock != nil {
		return *p.config.StartBlock, nil
	}

	latest, err := retry.Call(ctx, p.config.Retry, p.chain.LatestBlock)
	if err != nil {
		return 0, fmt.Errorf("poller: get latest block: %w", err)
	}
	if latest > p.config.Confirmations {
		return latest - p.config.Confirmations, nil
	}
	return 0, nil
}

func (p *Poller) poll(ctx context.Context, fromBlock *uint64) error {
	latest, err := retry.Call(ctx, p.config.Retry, p.chain.LatestBlock)
	if err != nil {
		return fmt.Errorf("poller: get latest block: %w", err)
	}

	if latest < p.config.Confirmations {
		return nil
	}
	safeBlock := latest - p.config.Confirmations

	for *fromBlock <= safeBlock {
		toBlock := *fromBlock + p.config.BatchSize - 1
		if toBlock > safeBlock {
			toBlock = safeBlock
		}

		q := p.query.Between(*fromBlock, toBlock)
		logs, err := retry.Call(ctx, p.config.Retry, func(ctx context.Context) ([]event.Log, error) {
			return p.chain.FetchLogs(ctx, q)
		})
		if err != nil {
			return fmt.Errorf("poller: fetch logs [%d, %d]: %w", *fromBlock, toBlock, err)
		}

		for _, log := range logs {
			p.emitEvent(log)
		}

		if err := p.cursor.Save(p.CursorKey(), toBlock); err != nil {
			return fmt.Errorf("poller: save cursor: %w", err)
		}
		*fromBlock = toBlock + 1

		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

package middleware

import (
	"sync/atomic"
	"time"

	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/metrics"
)

// Metrics records per-chain pipeline outcomes and handler latency in
// prometheus. It also keeps process-local totals for callers without a
// scrape endpoint.
type Metrics struct {
	processed atomic.Uint64
	dropped   atomic.Uint64
}

// NewMetrics creates the middleware.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Wrap times the rest of the chain and counts its verdict.
func (m *Metrics) Wrap(next Handler) Handler {
	return func(lg event.Log) *event.Log {
		start := time.Now()
		out := next(lg)
		metrics.HandlerSeconds.WithLabelValues(lg.Chain).Observe(time.Since(start).Seconds())

		if out == nil {
			m.dropped.Add(1)
			metrics.EventsDropped.WithLabelValues(lg.Chain).Inc()
			return nil
		}
		m.processed.Add(1)
		metrics.EventsProcessed.WithLabelValues(lg.Chain).Inc()
		return out
	}
}

// Processed is the number of logs that reached the end of the chain.
func (m *Metrics) Processed() uint64 { return m.processed.Load() }

// Dropped is the number of logs a later middleware filtered out.
func (m *Metrics) Dropped() uint64 { return m.dropped.Load() }

// Package metrics holds the prometheus collectors exported by fathom,
// partitioned by chain where a chain is known.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fathom"

var (
	// Transport
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total JSON-RPC calls by method and classified status",
	}, []string{"chain", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total JSON-RPC calls delayed by the client-side rate limiter",
	}, []string{"chain"})

	// Retry
	RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Total attempts made by retry.Call, by outcome",
	}, []string{"outcome"})

	// Scanner
	ScannerProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "probes_total",
		Help:      "Total accessor probes issued by the array scanner, by phase",
	}, []string{"phase"})

	ScannerScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scans_total",
		Help:      "Total Length calls by result",
	}, []string{"result"})

	ScannerLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "length",
		Help:      "Array lengths discovered by the scanner",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})

	// Tracker
	TrackerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "requests_total",
		Help:      "Total tracked oracle requests by terminal outcome",
	}, []string{"chain", "outcome"})

	TrackerPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "pending",
		Help:      "Oracle requests currently awaiting fulfillment",
	}, []string{"chain"})

	TrackerSettleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "settle_seconds",
		Help:      "Time from submission to observed fulfillment",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"chain"})

	// Hub
	HubEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "events_total",
		Help:      "Total logs fanned out by the subscription hub",
	}, []string{"chain"})

	HubSources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "sources",
		Help:      "Active shared log sources",
	}, []string{"chain"})

	// Middleware
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "events_processed_total",
		Help:      "Total logs that reached the terminal handler",
	}, []string{"chain"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "events_dropped_total",
		Help:      "Total logs dropped by middleware or a full subscriber",
	}, []string{"chain"})

	HandlerSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "handler_seconds",
		Help:      "Time spent in the handler chain per log",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"chain"})
)

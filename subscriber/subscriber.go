// Package subscriber provides event distribution patterns.
package subscriber

import (
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
)

// Subscriber receives event logs through a chosen delivery mechanism.
type Subscriber interface {
	// Send delivers a log to this subscriber. Non-blocking.
	Send(log event.Log)

	// Close terminates the subscriber and releases resources.
	Close()
}

// Filtered forwards only the logs accepted by a filter.
type Filtered struct {
	Subscriber
	filter filter.Filter
}

// NewFiltered wraps sub so it only sees logs matching f.
func NewFiltered(sub Subscriber, f filter.Filter) *Filtered {
	return &Filtered{Subscriber: sub, filter: f}
}

// Send forwards log when the filter matches.
func (f *Filtered) Send(log event.Log) {
	if f.filter == nil || f.filter.Match(log) {
		f.Subscriber.Send(log)
	}
}

// Package filter describes which logs a watcher fetches (Query) and which
// fanned-out logs a subscriber receives (Filter).
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hedeqiang/fathom/event"
)

// Filter determines whether a log matches a given criteria.
type Filter interface {
	Match(log event.Log) bool
}

// Func adapts a plain function to the Filter interface.
type Func func(log event.Log) bool

// Match calls f(log).
func (f Func) Match(log event.Log) bool { return f(log) }

// Query describes the parameters for fetching or subscribing to event logs.
type Query struct {
	Addresses []event.Address
	Topics    [][]event.Hash
	FromBlock *uint64
	ToBlock   *uint64
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// NewQuery creates a Query with the given options applied.
func NewQuery(opts ...QueryOption) Query {
	var q Query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// WithAddresses adds contract addresses to filter on.
func WithAddresses(addrs ...event.Address) QueryOption {
	return func(q *Query) {
		q.Addresses = append(q.Addresses, addrs...)
	}
}

// WithTopics sets the topic filters.
// Each element in the outer slice corresponds to a topic position.
// Multiple hashes within an inner slice are OR-matched.
func WithTopics(topics ...[]event.Hash) QueryOption {
	return func(q *Query) {
		q.Topics = topics
	}
}

// WithEvents restricts topic0 to the given event signature hashes, keeping
// any deeper topic positions already set.
func WithEvents(sigs ...event.Hash) QueryOption {
	return func(q *Query) {
		if len(q.Topics) == 0 {
			q.Topics = [][]event.Hash{nil}
		}
		q.Topics[0] = append(q.Topics[0], sigs...)
	}
}

// WithFromBlock sets the starting block number for the query.
func WithFromBlock(block uint64) QueryOption {
	return func(q *Query) {
		q.FromBlock = &block
	}
}

// WithToBlock sets the ending block number for the query.
func WithToBlock(block uint64) QueryOption {
	return func(q *Query) {
		q.ToBlock = &block
	}
}

// WithBlockRange sets both the starting and ending block numbers.
func WithBlockRange(from, to uint64) QueryOption {
	return func(q *Query) {
		q.FromBlock = &from
		q.ToBlock = &to
	}
}

// Between returns a copy of q restricted to [from, to].
func (q Query) Between(from, to uint64) Query {
	out := q
	out.FromBlock = &from
	out.ToBlock = &to
	return out
}

// Match reports whether log satisfies the address and topic constraints of
// the query. Block bounds are ignored: they select what to fetch, not what
// to deliver.
func (q Query) Match(log event.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, set := range q.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		found := false
		for _, h := range set {
			if h == log.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Key returns a canonical string for the address and topic constraints, so
// two queries selecting the same logs share one upstream source.
func (q Query) Key() string {
	var b strings.Builder

	addrs := make([]string, len(q.Addresses))
	for i, a := range q.Addresses {
		addrs[i] = strings.ToLower(a.Hex())
	}
	sort.Strings(addrs)
	b.WriteString(strings.Join(dedupe(addrs), ","))

	// trailing wildcards select the same logs as no constraint
	topics := q.Topics
	for len(topics) > 0 && len(topics[len(topics)-1]) == 0 {
		topics = topics[:len(topics)-1]
	}
	for i, set := range topics {
		hs := make([]string, len(set))
		for j, h := range set {
			hs[j] = h.Hex()
		}
		sort.Strings(hs)
		fmt.Fprintf(&b, "|%d:%s", i, strings.Join(dedupe(hs), ","))
	}
	return b.String()
}

func dedupe(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

package filter

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/hedeqiang/fathom/event"
)

// AddressFilter matches logs emitted by any of the specified contract addresses.
type AddressFilter struct {
	addresses map[event.Address]struct{}
}

// NewAddressFilter creates a filter that matches the given addresses.
func NewAddressFilter(addrs ...event.Address) *AddressFilter {
	m := make(map[event.Address]struct{}, len(addrs))
	for _, a := range addrs {
		m[a] = struct{}{}
	}
	return &AddressFilter{addresses: m}
}

// Match reports whether the log's address is in the filter set.
func (f *AddressFilter) Match(log event.Log) bool {
	_, ok := f.addresses[log.Address]
	return ok
}

// TopicFilter matches logs carrying any of the given hashes at one topic
// position (0-based).
type TopicFilter struct {
	position int
	hashes   map[event.Hash]struct{}
}

// NewTopicFilter creates a filter for the given topic position.
func NewTopicFilter(position int, hashes ...event.Hash) *TopicFilter {
	m := make(map[event.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		m[h] = struct{}{}
	}
	return &TopicFilter{position: position, hashes: m}
}

// Match reports whether the log has a matching topic at the configured position.
func (f *TopicFilter) Match(log event.Log) bool {
	if f.position >= len(log.Topics) {
		return false
	}
	_, ok := f.hashes[log.Topics[f.position]]
	return ok
}

// NewIndexedAddressFilter matches logs whose indexed address parameter at
// the given topic position is one of addrs. Addresses are compared as
// bytes, so hex casing never matters.
func NewIndexedAddressFilter(position int, addrs ...event.Address) *TopicFilter {
	hashes := make([]event.Hash, len(addrs))
	for i, a := range addrs {
		hashes[i] = common.BytesToHash(a.Bytes())
	}
	return NewTopicFilter(position, hashes...)
}

// BlockRangeFilter matches logs within a block number range (inclusive).
// A nil bound is open.
type BlockRangeFilter struct {
	from *uint64
	to   *uint64
}

// NewBlockRangeFilter creates a filter matching logs within [from, to].
func NewBlockRangeFilter(from, to *uint64) *BlockRangeFilter {
	return &BlockRangeFilter{from: from, to: to}
}

// Match reports whether the log's block number falls within the range.
func (f *BlockRangeFilter) Match(log event.Log) bool {
	if f.from != nil && log.BlockNumber < *f.from {
		return false
	}
	if f.to != nil && log.BlockNumber > *f.to {
		return false
	}
	return true
}

// Canonical drops logs that were removed by a chain reorganisation.
var Canonical Filter = Func(func(log event.Log) bool { return !log.Removed })

// AllOf matches logs accepted by every filter. With no filters it matches
// everything.
func AllOf(filters ...Filter) Filter {
	return Func(func(log event.Log) bool {
		for _, f := range filters {
			if !f.Match(log) {
				return false
			}
		}
		return true
	})
}

// AnyOf matches logs accepted by at least one filter. With no filters it
// matches everything, like an empty query.
func AnyOf(filters ...Filter) Filter {
	return Func(func(log event.Log) bool {
		if len(filters) == 0 {
			return true
		}
		for _, f := range filters {
			if f.Match(log) {
				return true
			}
		}
		return false
	})
}

// Not inverts a filter.
func Not(f Filter) Filter {
	return Func(func(log event.Log) bool { return !f.Match(log) })
}

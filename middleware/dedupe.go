package middleware

import (
	"time"

	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/internal/cache"
)

// Dedupe drops logs already delivered, keyed by (tx hash, log index). A
// reorg removal notice (Removed=true) is always forwarded and forgets the key,
// so the re-included log is delivered again.
type Dedupe struct {
	seen *cache.LRU[dedupeKey, struct{}]
}

type dedupeKey struct {
	chain string
	event.Key
}

// NewDedupe remembers up to size deliveries for ttl. A zero ttl keeps
// entries until evicted.
func NewDedupe(size int, ttl time.Duration) *Dedupe {
	return &Dedupe{seen: cache.NewLRU[dedupeKey, struct{}](size, ttl)}
}

// Wrap decorates the handler with duplicate suppression.
func (d *Dedupe) Wrap(next Handler) Handler {
	return func(lg event.Log) *event.Log {
		key := dedupeKey{chain: lg.Chain, Key: lg.Key()}
		if lg.Removed {
			d.seen.Remove(key)
			return next(lg)
		}
		if !d.seen.PutIfAbsent(key, struct{}{}) {
			return nil
		}
		return next(lg)
	}
}

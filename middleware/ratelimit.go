package middleware

import (
	"golang.org/x/time/rate"

	"github.com/hedeqiang/fathom/event"
)

// RateLimit drops events beyond a token-bucket rate. It protects slow
// handlers from bursts, such as a backfill replaying thousands of logs.
type RateLimit struct {
	limiter *rate.Limiter
}

// NewRateLimit allows perSecond events on average with the given burst.
func NewRateLimit(perSecond float64, burst int) *RateLimit {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimit{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wrap decorates the handler with rate limiting.
func (r *RateLimit) Wrap(next Handler) Handler {
	return func(lg event.Log) *event.Log {
		if !r.limiter.Allow() {
			return nil
		}
		return next(lg)
	}
}

package retry

import (
	"math"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of attempts made by Default.
	DefaultMaxAttempts = 3
	// DefaultInitialDelay is the wait before the second attempt.
	DefaultInitialDelay = 1 * time.Second
	// DefaultAttemptTimeout bounds each attempt made by Default.
	DefaultAttemptTimeout = 10 * time.Second
)

// Backoff implements exponential backoff with a bounded number of attempts.
type Backoff struct {
	// MaxAttempts is the total number of attempts, the first one included.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay. Zero means uncapped.
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay grows. Defaults to 2.
	Multiplier float64

	// Timeout bounds every attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
}

// Exponential creates a Backoff making maxAttempts attempts in total, waiting
// 1s, 2s, 4s, ... between them without a cap, each attempt bounded by 10s.
func Exponential(maxAttempts int) *Backoff {
	return &Backoff{
		MaxAttempts:  maxAttempts,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   2,
		Timeout:      DefaultAttemptTimeout,
	}
}

// Default returns the policy used for read-only chain calls: 3 attempts,
// 1s base delay, 10s per attempt.
func Default() *Backoff {
	return Exponential(DefaultMaxAttempts)
}

// Next returns the delay following the given failed attempt:
// InitialDelay * Multiplier^(attempt-1).
func (b *Backoff) Next(attempt int) (time.Duration, bool) {
	if attempt >= max(b.MaxAttempts, 1) {
		return 0, false
	}

	multiplier := b.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	delay := float64(b.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(math.MaxInt64) {
		delay = float64(math.MaxInt64)
	}
	d := time.Duration(delay)
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}

	return d, true
}

// AttemptTimeout implements Timeouter.
func (b *Backoff) AttemptTimeout() time.Duration {
	return b.Timeout
}

// Fixed waits the same interval between a bounded number of attempts. It
// models the "poll every N seconds, up to M times" loops used for receipts.
type Fixed struct {
	Interval    time.Duration
	MaxAttempts int
}

// Next implements Strategy.
func (f Fixed) Next(attempt int) (time.Duration, bool) {
	if attempt >= max(f.MaxAttempts, 1) {
		return 0, false
	}
	return f.Interval, true
}

// None makes a single attempt and never retries.
var None Strategy = Fixed{MaxAttempts: 1}

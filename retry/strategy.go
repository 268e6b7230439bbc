// Package retry provides retry strategies and a circuit breaker for resilient
// read-only chain calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hedeqiang/fathom/metrics"
)

// Strategy defines a retry policy.
type Strategy interface {
	// Next returns the delay before the attempt following the given failed
	// attempt (1-indexed). Returns false if no more attempts should be made.
	Next(attempt int) (delay time.Duration, ok bool)
}

// Timeouter is implemented by strategies that bound each individual attempt.
type Timeouter interface {
	AttemptTimeout() time.Duration
}

// sleep waits for d or until ctx is done. Tests replace it to record delays.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do executes fn, retrying according to the given strategy on non-nil errors.
// See Call for the exact semantics.
func Do(ctx context.Context, s Strategy, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call executes op and returns its value on the first success.
//
// Attempt k > 1 is preceded by the delay s.Next(k-1) returns. If s implements
// Timeouter, every attempt runs under that deadline and an attempt that
// overruns it counts as failed even if op ignores its context. Errors marked
// with Terminal end the loop immediately and are returned unwrapped. When the
// strategy gives up, the last error is wrapped in *MaxRetriesExceededError.
// Cancellation of ctx is returned as ctx.Err(). A nil strategy makes one attempt.
func Call[T any](ctx context.Context, s Strategy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if s == nil {
		s = None
	}
	var timeout time.Duration
	if t, ok := s.(Timeouter); ok {
		timeout = t.AttemptTimeout()
	}

	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		attempt++

		v, err := runAttempt(ctx, timeout, op)
		if err == nil {
			metrics.RetryAttemptsTotal.WithLabelValues("success").Inc()
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.RetryAttemptsTotal.WithLabelValues("canceled").Inc()
			return zero, ctxErr
		}
		if IsTerminal(err) {
			metrics.RetryAttemptsTotal.WithLabelValues("terminal").Inc()
			return zero, err
		}
		metrics.RetryAttemptsTotal.WithLabelValues("failure").Inc()

		delay, ok := s.Next(attempt)
		if !ok {
			return zero, &MaxRetriesExceededError{Attempts: attempt, Err: err}
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	var zero T
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(actx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%w after %s: %v", ErrAttemptTimeout, timeout, r.err)
		}
		return r.v, r.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", ErrAttemptTimeout, timeout)
	}
}

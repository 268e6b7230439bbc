package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hedeqiang/fathom/metrics"
	"github.com/hedeqiang/fathom/retry"
)

// LimitConfig configures a Limited transport. A zero RPS disables the
// client-side limiter; a zero BreakerThreshold disables the breaker.
type LimitConfig struct {
	RPS              float64       `yaml:"rps"`
	Burst            int           `yaml:"burst"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// Limited wraps a Transport with a token-bucket limiter and a circuit breaker,
// and records per-method call metrics.
type Limited struct {
	inner   Transport
	chain   string
	limiter *rate.Limiter
	breaker *retry.CircuitBreaker
}

// NewLimited wraps inner for the given chain.
func NewLimited(inner Transport, chain string, cfg LimitConfig) *Limited {
	l := &Limited{inner: inner, chain: chain}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	if cfg.BreakerThreshold > 0 {
		reset := cfg.BreakerReset
		if reset <= 0 {
			reset = 30 * time.Second
		}
		l.breaker = retry.NewCircuitBreaker(cfg.BreakerThreshold, reset)
	}
	return l
}

// Breaker returns the circuit breaker, or nil when disabled.
func (l *Limited) Breaker() *retry.CircuitBreaker {
	return l.breaker
}

// Call forwards to the inner transport once the limiter and breaker allow it.
// Reverts are terminal for retry purposes; a rejected call is transient.
func (l *Limited) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	if l.breaker != nil {
		if err := l.breaker.Allow(); err != nil {
			metrics.RPCCallsTotal.WithLabelValues(l.chain, method, "circuit_open").Inc()
			return nil, retry.Transient(fmt.Errorf("transport: %s on %s: %w", method, l.chain, err))
		}
	}
	if err := l.wait(ctx); err != nil {
		return nil, err
	}

	result, err := l.inner.Call(ctx, method, params...)
	metrics.RPCCallsTotal.WithLabelValues(l.chain, method, Classify(err)).Inc()

	switch {
	case err == nil:
		l.recordSuccess()
		return result, nil
	case IsRevert(err):
		// the node answered; the endpoint is healthy
		l.recordSuccess()
		return nil, retry.Terminal(err)
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		if l.breaker != nil {
			l.breaker.RecordFailure()
		}
		return nil, err
	}
}

// Subscribe forwards to the inner transport after taking one limiter token.
func (l *Limited) Subscribe(ctx context.Context, method string, params ...interface{}) (<-chan []byte, func(), error) {
	if err := l.wait(ctx); err != nil {
		return nil, nil, err
	}
	ch, unsub, err := l.inner.Subscribe(ctx, method, params...)
	if !errors.Is(err, ErrSubscriptionsUnsupported) {
		metrics.RPCCallsTotal.WithLabelValues(l.chain, method, Classify(err)).Inc()
	}
	return ch, unsub, err
}

// Close closes the inner transport.
func (l *Limited) Close() error {
	return l.inner.Close()
}

func (l *Limited) recordSuccess() {
	if l.breaker != nil {
		l.breaker.RecordSuccess()
	}
}

// wait blocks until the limiter allows one call, or ctx is done.
// Reserve guarantees exactly one token is consumed per call.
func (l *Limited) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("transport: rate limiter cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.WithLabelValues(l.chain).Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Package scanner measures and enumerates on-chain arrays that expose only a
// per-index accessor which fails past the last element.
//
// Length probes a coarse list of checkpoints, doubles past the last one if
// every checkpoint exists, then binary-searches the gap between the last
// index that answered and the first that did not. Any accessor error counts
// as "index invalid", so the array is assumed to have no gaps.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom/metrics"
)

// ErrInvariantViolation is returned when a scan exceeds its probe cap. A
// finite array always terminates, so the accessor never failing means the
// contract is not the kind of array the scanner understands.
var ErrInvariantViolation = errors.New("scanner: invariant violation")

// DefaultCheckpoints are probed in order before the binary search.
var DefaultCheckpoints = []uint64{0, 1, 2, 3, 4, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100, 150, 200, 300, 500, 1000}

const (
	// DefaultMaxProbes caps the accessor calls made by one Length.
	DefaultMaxProbes = 10_000

	// DefaultConcurrency bounds Enumerate's parallel fetches.
	DefaultConcurrency = 8
)

// Accessor reads element index of an on-chain array. It fails for any index
// at or past the end.
type Accessor func(ctx context.Context, index uint64) (common.Address, error)

// ScanResult is the outcome of Length.
type ScanResult struct {
	// Length is the number of contiguous valid indices starting at 0.
	Length uint64

	// Probes is the number of accessor calls the scan made.
	Probes int
}

// Config holds the scanner's tuning parameters.
type Config struct {
	Checkpoints []uint64 `yaml:"checkpoints"`
	MaxProbes   int      `yaml:"max_probes"`
	Concurrency int      `yaml:"concurrency"`
}

// DefaultConfig returns the default checkpoints, a 10 000 probe cap and 8
// parallel fetches.
func DefaultConfig() Config {
	return Config{
		Checkpoints: slices.Clone(DefaultCheckpoints),
		MaxProbes:   DefaultMaxProbes,
		Concurrency: DefaultConcurrency,
	}
}

// Scanner runs scans. It holds no per-scan state and is safe for concurrent use.
type Scanner struct {
	checkpoints []uint64
	maxProbes   int
	concurrency int
	logger      zerolog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithConfig applies cfg. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Scanner) {
		if len(cfg.Checkpoints) > 0 {
			s.checkpoints = cfg.Checkpoints
		}
		if cfg.MaxProbes > 0 {
			s.maxProbes = cfg.MaxProbes
		}
		if cfg.Concurrency > 0 {
			s.concurrency = cfg.Concurrency
		}
	}
}

// WithCheckpoints replaces the checkpoint list.
func WithCheckpoints(cps ...uint64) Option {
	return func(s *Scanner) { s.checkpoints = cps }
}

// WithMaxProbes sets the probe cap.
func WithMaxProbes(n int) Option {
	return func(s *Scanner) { s.maxProbes = n }
}

// WithConcurrency bounds Enumerate's parallel fetches.
func WithConcurrency(n int) Option {
	return func(s *Scanner) { s.concurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		checkpoints: DefaultCheckpoints,
		maxProbes:   DefaultMaxProbes,
		concurrency: DefaultConcurrency,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.checkpoints = normalize(s.checkpoints)
	if s.maxProbes <= 0 {
		s.maxProbes = DefaultMaxProbes
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	s.logger = s.logger.With().Str("component", "scanner").Logger()
	return s
}

// normalize sorts and dedupes the checkpoints and makes sure 0 comes first,
// so an empty array is detected with a single probe.
func normalize(cps []uint64) []uint64 {
	out := append([]uint64{0}, cps...)
	slices.Sort(out)
	return slices.Compact(out)
}

// scan is the state of one Length call.
type scan struct {
	s      *Scanner
	access Accessor
	probes int
}

// valid probes index. Errors from the accessor are the signal being
// searched for and never escape; only the probe cap and ctx do.
func (sc *scan) valid(ctx context.Context, phase string, index uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if sc.probes >= sc.s.maxProbes {
		return false, fmt.Errorf("%w: no end found after %d probes", ErrInvariantViolation, sc.probes)
	}
	sc.probes++
	metrics.ScannerProbesTotal.WithLabelValues(phase).Inc()

	if _, err := sc.access(ctx, index); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	return true, nil
}

// Length returns the number of contiguous valid indices of the array behind
// access. Probes run strictly one after another, and ctx is checked between
// them.
func (s *Scanner) Length(ctx context.Context, access Accessor) (ScanResult, error) {
	sc := &scan{s: s, access: access}
	n, err := sc.length(ctx)
	res := ScanResult{Length: n, Probes: sc.probes}

	switch {
	case err == nil:
		metrics.ScannerScansTotal.WithLabelValues("ok").Inc()
		metrics.ScannerLength.Observe(float64(n))
		s.logger.Debug().Uint64("length", n).Int("probes", sc.probes).Msg("Scan complete")
	case errors.Is(err, ErrInvariantViolation):
		metrics.ScannerScansTotal.WithLabelValues("invariant_violation").Inc()
		s.logger.Error().Err(err).Int("probes", sc.probes).Msg("Scan exceeded probe cap")
		return ScanResult{Probes: sc.probes}, err
	default:
		metrics.ScannerScansTotal.WithLabelValues("canceled").Inc()
		return ScanResult{Probes: sc.probes}, err
	}
	return res, nil
}

func (sc *scan) length(ctx context.Context) (uint64, error) {
	var (
		lastValid uint64
		upper     uint64
		bounded   bool
	)

	for i, cp := range sc.s.checkpoints {
		ok, err := sc.valid(ctx, "checkpoint", cp)
		if err != nil {
			return 0, err
		}
		if !ok {
			if i == 0 {
				return 0, nil
			}
			upper, bounded = cp, true
			break
		}
		lastValid = cp
	}

	for !bounded {
		next := lastValid * 2
		if lastValid == 0 {
			next = 1
		}
		if lastValid > math.MaxUint64/2 {
			return 0, fmt.Errorf("%w: index space exhausted at %d", ErrInvariantViolation, lastValid)
		}
		ok, err := sc.valid(ctx, "doubling", next)
		if err != nil {
			return 0, err
		}
		if !ok {
			upper, bounded = next, true
			break
		}
		lastValid = next
	}

	// lastValid answered and upper did not: the end lies in (lastValid, upper].
	left, right := lastValid+1, upper-1
	for left <= right {
		mid := left + (right-left)/2
		ok, err := sc.valid(ctx, "binary", mid)
		if err != nil {
			return 0, err
		}
		if ok {
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return left, nil
}

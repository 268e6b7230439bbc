package fathom

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom/cursor"
	"github.com/hedeqiang/fathom/middleware"
	"github.com/hedeqiang/fathom/retry"
	"github.com/hedeqiang/fathom/scanner"
	"github.com/hedeqiang/fathom/tracker"
	"github.com/hedeqiang/fathom/watcher"
)

// Option configures a Fathom instance.
type Option func(*Fathom)

// WithConfig replaces the whole configuration. Chains listed in it are
// only added by NewFromConfig.
func WithConfig(cfg Config) Option {
	return func(f *Fathom) {
		f.config = cfg
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fathom) {
		f.logger = l
	}
}

// WithLogLevel sets the log verbosity level.
func WithLogLevel(level string) Option {
	return func(f *Fathom) {
		f.config.LogLevel = level
	}
}

// WithCursor sets a cursor shared by polling watches, so a restarted watch
// resumes where it stopped.
func WithCursor(c cursor.Cursor) Option {
	return func(f *Fathom) {
		f.cursor = c
	}
}

// WithRetry sets the retry strategy for read-only RPC calls.
func WithRetry(strategy retry.Strategy) Option {
	return func(f *Fathom) {
		f.retry = strategy
	}
}

// WithMiddleware adds middleware applied to Watch handlers.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(f *Fathom) {
		f.middlewares = append(f.middlewares, mw...)
	}
}

// WithPollerConfig overrides the polling configuration.
func WithPollerConfig(cfg watcher.PollerConfig) Option {
	return func(f *Fathom) {
		f.config.Poller = cfg
	}
}

// WithPollInterval sets the polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(f *Fathom) {
		f.config.Poller.Interval = d
	}
}

// WithConfirmations sets the number of confirmation blocks to wait.
func WithConfirmations(n uint64) Option {
	return func(f *Fathom) {
		f.config.Poller.Confirmations = n
	}
}

// WithScannerConfig overrides the array scanner's checkpoints and caps.
func WithScannerConfig(cfg scanner.Config) Option {
	return func(f *Fathom) {
		f.config.Scanner = cfg
	}
}

// WithTrackerTimeout sets the default wait budget of trackers to
// interval × attempts.
func WithTrackerTimeout(interval time.Duration, attempts int) Option {
	return func(f *Fathom) {
		f.config.Tracker.Interval = interval
		f.config.Tracker.Attempts = attempts
	}
}

// WithTrackerConfig overrides the default tracker configuration.
func WithTrackerConfig(cfg tracker.Config) Option {
	return func(f *Fathom) {
		f.config.Tracker = cfg
	}
}

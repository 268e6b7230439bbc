package fathom

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/chain/arbitrum"
	"github.com/hedeqiang/fathom/chain/base"
	"github.com/hedeqiang/fathom/chain/ethereum"
	"github.com/hedeqiang/fathom/retry"
	"github.com/hedeqiang/fathom/scanner"
	"github.com/hedeqiang/fathom/signer"
	"github.com/hedeqiang/fathom/tracker"
	"github.com/hedeqiang/fathom/transport"
	"github.com/hedeqiang/fathom/watcher"
)

// Config holds the global configuration for a Fathom instance.
type Config struct {
	// LogLevel controls log verbosity ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level"`

	Chains  []ChainConfig        `yaml:"chains"`
	Retry   RetryConfig          `yaml:"retry"`
	Poller  watcher.PollerConfig `yaml:"poller"`
	Scanner scanner.Config       `yaml:"scanner"`
	Tracker tracker.Config       `yaml:"tracker"`
	Signer  signer.Config        `yaml:"signer"`

	// DedupeSize bounds the log keys remembered by the hub's dedupe stage.
	DedupeSize int `yaml:"dedupe_size"`
}

// ChainConfig describes one RPC endpoint.
type ChainConfig struct {
	// ID is the chain name. "base" and "arbitrum" select their presets,
	// anything else is a generic EVM chain.
	ID string `yaml:"id"`

	// RPCURL is an http(s) or ws(s) endpoint. ws(s) enables streaming.
	RPCURL string `yaml:"rpc_url"`

	// Headers are sent with every HTTP request (provider API keys).
	Headers map[string]string `yaml:"headers"`

	RateLimit transport.LimitConfig `yaml:"rate_limit"`
}

// RetryConfig is the exponential policy used for read-only calls.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	// MaxDelay caps the wait between attempts. Zero leaves it uncapped.
	MaxDelay time.Duration `yaml:"max_delay"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Strategy builds the retry strategy.
func (c RetryConfig) Strategy() retry.Strategy {
	b := retry.Exponential(c.MaxAttempts)
	if c.InitialDelay > 0 {
		b.InitialDelay = c.InitialDelay
	}
	b.MaxDelay = c.MaxDelay
	if c.Timeout > 0 {
		b.Timeout = c.Timeout
	}
	return b
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Retry: RetryConfig{
			MaxAttempts:  retry.DefaultMaxAttempts,
			InitialDelay: retry.DefaultInitialDelay,
			Timeout:      retry.DefaultAttemptTimeout,
		},
		Poller:     watcher.DefaultPollerConfig(),
		Scanner:    scanner.DefaultConfig(),
		Tracker:    tracker.DefaultConfig(),
		Signer:     signer.DefaultConfig(),
		DedupeSize: 4096,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Environment variables
// in the file (${RPC_URL}) are expanded first.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("fathom: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return Config{}, fmt.Errorf("fathom: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	seen := make(map[string]bool, len(c.Chains))
	for _, cc := range c.Chains {
		switch {
		case cc.ID == "":
			return fmt.Errorf("%w: chain without id", ErrInvalidConfig)
		case cc.RPCURL == "":
			return fmt.Errorf("%w: chain %s has no rpc_url", ErrInvalidConfig, cc.ID)
		case seen[cc.ID]:
			return fmt.Errorf("%w: chain %s listed twice", ErrInvalidConfig, cc.ID)
		}
		seen[cc.ID] = true
	}
	if c.Tracker.Interval <= 0 {
		return fmt.Errorf("%w: tracker.interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// level returns the zerolog level, defaulting to info.
func (c Config) level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Client builds the chain client for cc.
func (cc ChainConfig) Client() chain.Chain {
	opts := []ethereum.Option{ethereum.WithRateLimit(cc.RateLimit), ethereum.WithHeaders(cc.Headers)}
	switch cc.ID {
	case "base":
		return base.New(cc.RPCURL, opts...)
	case "arbitrum":
		return arbitrum.New(cc.RPCURL, opts...)
	default:
		return ethereum.NewWithID(cc.ID, cc.RPCURL, opts...)
	}
}

// NewFromConfig creates a Fathom instance with every chain of cfg added.
func NewFromConfig(cfg Config, opts ...Option) (*Fathom, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append([]Option{WithConfig(cfg), WithRetry(cfg.Retry.Strategy())}, opts...)
	f := New(opts...)
	for _, cc := range cfg.Chains {
		if err := f.AddChain(cc.Client()); err != nil {
			return nil, err
		}
	}
	return f, nil
}

package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom/chain"
)

const (
	defaultFallbackGasLimit = 1_500_000
	defaultTipCap           = 2_000_000_000
)

// Config tunes gas and fee selection.
type Config struct {
	// GasLimitBufferPct is added on top of the node's estimate.
	GasLimitBufferPct uint64 `yaml:"gas_limit_buffer_pct"`

	// FallbackGasLimit is used when estimation fails.
	FallbackGasLimit uint64 `yaml:"fallback_gas_limit"`

	// MaxPriorityFeeWei and MaxFeePerGasWei cap the suggested fees. Nil means no cap.
	MaxPriorityFeeWei *big.Int `yaml:"-"`
	MaxFeePerGasWei   *big.Int `yaml:"-"`

	// ReceiptInterval is the polling interval of WaitForReceipt.
	ReceiptInterval time.Duration `yaml:"receipt_interval"`
}

// DefaultConfig returns a 20% gas buffer, 1.5M fallback gas and 1s receipt polling.
func DefaultConfig() Config {
	return Config{
		GasLimitBufferPct: 20,
		FallbackGasLimit:  defaultFallbackGasLimit,
		ReceiptInterval:   time.Second,
	}
}

// Option configures a Local wallet.
type Option func(*Local)

// WithConfig replaces the gas and fee configuration.
func WithConfig(cfg Config) Option {
	return func(l *Local) { l.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Local) { l.log = log }
}

// Local signs transactions with a local secp256k1 private key.
type Local struct {
	client chain.Sender
	key    *ecdsa.PrivateKey
	from   common.Address
	cfg    Config
	log    zerolog.Logger

	// serialises nonce selection
	mu      sync.Mutex
	chainID *big.Int
}

var _ Wallet = (*Local)(nil)

// NewLocal creates a wallet sending through client.
func NewLocal(client chain.Sender, key *ecdsa.PrivateKey, opts ...Option) *Local {
	l := &Local{
		client: client,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		cfg:    DefaultConfig(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With().Str("component", "signer").Str("from", l.from.Hex()).Logger()
	return l
}

// NewLocalFromHex parses a hex private key (with or without 0x).
func NewLocalFromHex(client chain.Sender, hexKey string, opts ...Option) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return NewLocal(client, key, opts...), nil
}

// From returns the sending account.
func (l *Local) From() common.Address { return l.from }

// SendTransaction builds, signs and broadcasts a DynamicFeeTx for call.
func (l *Local) SendTransaction(ctx context.Context, call Call) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chainID, err := l.loadChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := l.client.PendingNonceAt(ctx, l.from)
	if err != nil {
		l.log.Error().Err(err).Msg("Failed to fetch nonce")
		return common.Hash{}, fmt.Errorf("signer: fetch nonce: %w", err)
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	gasLimit := call.GasLimit
	if gasLimit == 0 {
		gasLimit = l.estimateGasLimit(ctx, call, value)
	}
	tipCap, feeCap := l.suggestFees(ctx)

	to := call.To
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     value,
		Gas:       gasLimit,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Data:      call.Data,
	})

	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(chainID), l.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signer: sign tx: %w", err)
	}

	if _, err := l.client.SendRawTransaction(ctx, signed); err != nil {
		l.log.Error().Err(err).Str("tx_hash", signed.Hash().Hex()).Msg("Failed to send transaction")
		return common.Hash{}, fmt.Errorf("signer: send tx: %w", err)
	}

	l.log.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas_limit", gasLimit).
		Str("gas_tip_cap", tipCap.String()).
		Str("gas_fee_cap", feeCap.String()).
		Msg("Transaction submitted")

	return signed.Hash(), nil
}

// WaitForReceipt polls for the receipt every ReceiptInterval. Lookup errors
// other than "not found" are logged and retried until ctx is done.
func (l *Local) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	interval := l.cfg.ReceiptInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				l.log.Warn().Str("tx_hash", hash.Hex()).Uint64("gas_used", receipt.GasUsed).Msg("Transaction reverted")
				return receipt, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
			}
			return receipt, nil
		case errors.Is(err, geth.NotFound):
		default:
			if ctx.Err() == nil {
				l.log.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("Receipt lookup failed")
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Local) loadChainID(ctx context.Context) (*big.Int, error) {
	if l.chainID != nil {
		return l.chainID, nil
	}
	id, err := l.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: fetch chain id: %w", err)
	}
	l.chainID = id
	return id, nil
}

func (l *Local) estimateGasLimit(ctx context.Context, call Call, value *big.Int) uint64 {
	to := call.To
	msg := geth.CallMsg{From: l.from, To: &to, Value: value, Data: call.Data}
	if est, err := l.client.EstimateGas(ctx, msg); err == nil {
		limit := est + est*l.cfg.GasLimitBufferPct/100
		l.log.Debug().Uint64("estimated_gas", est).Uint64("gas_limit", limit).Msg("Gas estimated")
		return limit
	}
	fallback := l.cfg.FallbackGasLimit
	if fallback == 0 {
		fallback = defaultFallbackGasLimit
	}
	l.log.Warn().Uint64("fallback_gas_limit", fallback).Msg("Gas estimation failed, using fallback")
	return fallback
}

// suggestFees returns EIP-1559 tip and fee caps: twice the base fee plus the
// tip, falling back to the legacy gas price on pre-London chains.
func (l *Local) suggestFees(ctx context.Context) (*big.Int, *big.Int) {
	tipCap, err := l.client.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		tipCap = big.NewInt(defaultTipCap)
	}

	var feeCap *big.Int
	if baseFee, err := l.client.BaseFee(ctx); err == nil && baseFee != nil {
		feeCap = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)
	} else if sp, err := l.client.SuggestGasPrice(ctx); err == nil && sp != nil {
		feeCap = sp
	} else {
		feeCap = new(big.Int).Add(big.NewInt(defaultTipCap), tipCap)
	}

	if c := l.cfg.MaxPriorityFeeWei; c != nil && c.Sign() > 0 && c.Cmp(tipCap) < 0 {
		tipCap = new(big.Int).Set(c)
	}
	if c := l.cfg.MaxFeePerGasWei; c != nil && c.Sign() > 0 && c.Cmp(feeCap) < 0 {
		feeCap = new(big.Int).Set(c)
	}
	if feeCap.Cmp(tipCap) < 0 {
		tipCap = new(big.Int).Set(feeCap)
	}
	return tipCap, feeCap
}

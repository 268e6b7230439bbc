package signer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu sync.Mutex

	chainID  *big.Int
	nonce    uint64
	tip      *big.Int
	tipErr   error
	gasPrice *big.Int
	baseFee  *big.Int
	gas      uint64
	gasErr   error
	sendErr  error

	sent        []*types.Transaction
	estimated   []geth.CallMsg
	chainIDHits int

	// receipts served after pendingPolls NotFound responses
	receipt      *types.Receipt
	pendingPolls int
	receiptPolls int
}

func (f *fakeSender) ChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainIDHits++
	return f.chainID, nil
}

func (f *fakeSender) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeSender) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return f.tip, f.tipErr
}

func (f *fakeSender) SuggestGasPrice(context.Context) (*big.Int, error) {
	if f.gasPrice == nil {
		return nil, errors.New("no gas price")
	}
	return f.gasPrice, nil
}

func (f *fakeSender) BaseFee(context.Context) (*big.Int, error) {
	return f.baseFee, nil
}

func (f *fakeSender) EstimateGas(_ context.Context, msg geth.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimated = append(f.estimated, msg)
	return f.gas, f.gasErr
}

func (f *fakeSender) SendRawTransaction(_ context.Context, tx *types.Transaction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return tx.Hash(), nil
}

func (f *fakeSender) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptPolls++
	if f.receiptPolls <= f.pendingPolls || f.receipt == nil {
		return nil, geth.NotFound
	}
	r := *f.receipt
	r.TxHash = hash
	return &r, nil
}

func newFake() *fakeSender {
	return &fakeSender{
		chainID: big.NewInt(8453),
		nonce:   7,
		tip:     big.NewInt(1_000_000_000),
		baseFee: big.NewInt(10_000_000_000),
		gas:     100_000,
	}
}

func TestLocal_SendTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	fake := newFake()
	w := NewLocal(fake, key)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	hash, err := w.SendTransaction(context.Background(), Call{To: to, Data: []byte{0x01, 0x02}, Value: big.NewInt(5)})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)

	tx := fake.sent[0]
	assert.Equal(t, tx.Hash(), hash)
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, to, *tx.To())
	assert.Equal(t, []byte{0x01, 0x02}, tx.Data())
	assert.Equal(t, int64(5), tx.Value().Int64())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, int64(1_000_000_000), tx.GasTipCap().Int64())
	assert.Equal(t, int64(21_000_000_000), tx.GasFeeCap().Int64())
	assert.Equal(t, int64(8453), tx.ChainId().Int64())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.From(), from)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), from)

	require.Len(t, fake.estimated, 1)
	assert.Equal(t, w.From(), fake.estimated[0].From)
}

func TestLocal_CachesChainIDAndAdvancesNonce(t *testing.T) {
	key, _ := crypto.GenerateKey()
	fake := newFake()
	w := NewLocal(fake, key)

	for i := 0; i < 3; i++ {
		_, err := w.SendTransaction(context.Background(), Call{To: common.Address{1}})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.chainIDHits)
	require.Len(t, fake.sent, 3)
	assert.Equal(t, uint64(7), fake.sent[0].Nonce())
	assert.Equal(t, uint64(9), fake.sent[2].Nonce())
	assert.Equal(t, int64(0), fake.sent[0].Value().Int64())
}

func TestLocal_GasFallbackAndOverride(t *testing.T) {
	key, _ := crypto.GenerateKey()
	fake := newFake()
	fake.gasErr = errors.New("execution reverted")
	w := NewLocal(fake, key)

	_, err := w.SendTransaction(context.Background(), Call{To: common.Address{1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(defaultFallbackGasLimit), fake.sent[0].Gas())

	_, err = w.SendTransaction(context.Background(), Call{To: common.Address{1}, GasLimit: 55_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(55_000), fake.sent[1].Gas())
	assert.Len(t, fake.estimated, 1)
}

func TestLocal_SuggestFees(t *testing.T) {
	key, _ := crypto.GenerateKey()

	t.Run("pre-London uses gas price", func(t *testing.T) {
		fake := newFake()
		fake.baseFee = nil
		fake.gasPrice = big.NewInt(3_000_000_000)
		tip, fee := NewLocal(fake, key).suggestFees(context.Background())
		assert.Equal(t, int64(1_000_000_000), tip.Int64())
		assert.Equal(t, int64(3_000_000_000), fee.Int64())
	})

	t.Run("no data falls back to defaults", func(t *testing.T) {
		fake := newFake()
		fake.baseFee = nil
		fake.tipErr = errors.New("unsupported")
		tip, fee := NewLocal(fake, key).suggestFees(context.Background())
		assert.Equal(t, int64(defaultTipCap), tip.Int64())
		assert.Equal(t, int64(2*defaultTipCap), fee.Int64())
	})

	t.Run("caps applied", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxPriorityFeeWei = big.NewInt(500)
		cfg.MaxFeePerGasWei = big.NewInt(400)
		tip, fee := NewLocal(newFake(), key, WithConfig(cfg)).suggestFees(context.Background())
		assert.Equal(t, int64(400), fee.Int64())
		assert.Equal(t, int64(400), tip.Int64())
	})
}

func TestLocal_SendError(t *testing.T) {
	key, _ := crypto.GenerateKey()
	fake := newFake()
	fake.sendErr = errors.New("nonce too low")
	_, err := NewLocal(fake, key).SendTransaction(context.Background(), Call{To: common.Address{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestLocal_WaitForReceipt(t *testing.T) {
	key, _ := crypto.GenerateKey()
	cfg := DefaultConfig()
	cfg.ReceiptInterval = time.Millisecond

	t.Run("polls until mined", func(t *testing.T) {
		fake := newFake()
		fake.pendingPolls = 3
		fake.receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(12)}
		r, err := NewLocal(fake, key, WithConfig(cfg)).WaitForReceipt(context.Background(), common.Hash{9})
		require.NoError(t, err)
		assert.Equal(t, common.Hash{9}, r.TxHash)
		assert.Equal(t, 4, fake.receiptPolls)
	})

	t.Run("failed status", func(t *testing.T) {
		fake := newFake()
		fake.receipt = &types.Receipt{Status: types.ReceiptStatusFailed}
		r, err := NewLocal(fake, key, WithConfig(cfg)).WaitForReceipt(context.Background(), common.Hash{9})
		require.ErrorIs(t, err, ErrReverted)
		require.NotNil(t, r)
	})

	t.Run("context deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewLocal(newFake(), key, WithConfig(cfg)).WaitForReceipt(ctx, common.Hash{9})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNewLocalFromHex(t *testing.T) {
	const hexKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	w, err := NewLocalFromHex(newFake(), hexKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), w.From())

	_, err = NewLocalFromHex(newFake(), "zz")
	require.Error(t, err)
}

package tracker

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/fathom/hub"
	"github.com/hedeqiang/fathom/signer"
)

var (
	game    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	entropy = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

const (
	submittedSig = "RequestSubmitted(uint64 seq, address indexed requester)"
	fulfilledSig = "RequestFulfilled(uint64 seq, uint256 outcome)"
)

func genericSpec() EventSpec {
	return EventSpec{
		Signatures:     []string{submittedSig, fulfilledSig},
		Submitted:      "RequestSubmitted",
		Fulfilled:      "RequestFulfilled",
		RequesterField: "requester",
		KeyField:       "seq",
	}
}

type env struct {
	chain *fakeChain
	hub   *hub.Hub
	tr    *Tracker
}

func setup(t *testing.T, spec EventSpec, opts ...Option) *env {
	t.Helper()
	c := &fakeChain{head: 100}
	h := hub.New()
	opts = append([]Option{WithConfig(Config{Interval: time.Second, Attempts: 5, Backfill: true})}, opts...)
	tr, err := New(c, h, game, spec, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tr.Close(context.Background())
		_ = h.Close(context.Background())
	})
	return &env{chain: c, hub: h, tr: tr}
}

func waitResult(t *testing.T, r *Request) (*SettlementRecord, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rec, err := r.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "request did not resolve")
	return rec, err
}

func TestTrack_EndToEnd(t *testing.T) {
	e := setup(t, genericSpec())
	w := newWallet("0x1111111111111111111111111111111111111111")

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	assert.Equal(t, Submitted, r.State())
	e.chain.waitStreams(t, 2)

	submitted := sigEvent(t, submittedSig)
	e.chain.emit(encode(t, submitted, logOpts{
		contract: game, block: 101, tx: r.TxHash, indexed: []common.Hash{addrTopic(w.from)},
	}, uint64(42)))
	require.Eventually(t, func() bool { return r.State() == SequenceKnown }, 2*time.Second, 2*time.Millisecond)
	key, ok := r.CorrelationKey()
	require.True(t, ok)
	assert.Equal(t, int64(42), key.Int64())

	fulfilled := sigEvent(t, fulfilledSig)
	e.chain.emit(encode(t, fulfilled, logOpts{contract: game, block: 104, tx: common.Hash{0xbb}},
		uint64(42), big.NewInt(7)))

	rec, err := waitResult(t, r)
	require.NoError(t, err)
	assert.Equal(t, Settled, r.State())
	assert.Equal(t, int64(42), rec.CorrelationKey.Int64())
	require.Len(t, rec.Payload, 1)
	outcome, ok := rec.Payload["outcome"].(*big.Int)
	require.True(t, ok)
	assert.Equal(t, int64(7), outcome.Int64())
	assert.Equal(t, uint64(104), rec.Raw.BlockNumber)

	var out struct {
		Seq     uint64
		Outcome *big.Int
	}
	require.NoError(t, rec.Bind(&out))
	assert.Equal(t, uint64(42), out.Seq)

	assert.Empty(t, e.tr.Pending())
	assert.Equal(t, 2, e.chain.liveStreams(), "subscriptions are held until Close")
}

func TestTrack_RequesterMatchIgnoresCase(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD")

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	e.chain.waitStreams(t, 2)

	player := common.HexToAddress(strings.ToLower("0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD"))
	settled := sigEvent(t, PlinkoSpec().Signatures[1])
	e.chain.emit(encode(t, settled, logOpts{contract: game, block: 110, tx: common.Hash{0x01}, indexed: []common.Hash{addrTopic(player)}},
		uint64(9), big.NewInt(1e15), uint8(12), big.NewInt(6), big.NewInt(6e14)))

	rec, err := waitResult(t, r)
	require.NoError(t, err)
	assert.Equal(t, int64(9), rec.CorrelationKey.Int64())
	assert.Contains(t, rec.Payload, "payout")
	assert.NotContains(t, rec.Payload, "player")
}

func TestTrack_IgnoresReorgedSettlement(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x3333333333333333333333333333333333333333")

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	e.chain.waitStreams(t, 2)

	settled := sigEvent(t, PlinkoSpec().Signatures[1])
	opts := logOpts{contract: game, block: 120, tx: common.Hash{0x0a}, indexed: []common.Hash{addrTopic(w.from)}}
	orphaned := encode(t, settled, opts, uint64(5), big.NewInt(1e15), uint8(8), big.NewInt(1), big.NewInt(1))
	orphaned.Removed = true
	e.chain.emit(orphaned)

	opts.block, opts.tx = 121, common.Hash{0x0b}
	e.chain.emit(encode(t, settled, opts, uint64(5), big.NewInt(1e15), uint8(8), big.NewInt(3), big.NewInt(2e15)))

	rec, err := waitResult(t, r)
	require.NoError(t, err)
	assert.Equal(t, uint64(121), rec.Raw.BlockNumber)
	assert.Equal(t, "2000000000000000", rec.Payload["payout"].(*big.Int).String())
}

func TestTrack_SettlesWithoutSequenceEvent(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x2222222222222222222222222222222222222222")

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	e.chain.waitStreams(t, 2)

	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	settled := sigEvent(t, PlinkoSpec().Signatures[1])
	emit := func(player common.Address, tx byte) {
		e.chain.emit(encode(t, settled, logOpts{contract: game, block: 110, tx: common.Hash{tx}, indexed: []common.Hash{addrTopic(player)}},
			uint64(5), big.NewInt(1), uint8(12), big.NewInt(0), big.NewInt(2)))
	}

	emit(other, 0x01)
	emit(w.from, 0x02)

	rec, err := waitResult(t, r)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0x02}, rec.Raw.TxHash)
	assert.Equal(t, Settled, r.State())
}

func TestTrack_KeyMismatchIsIgnored(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x2222222222222222222222222222222222222222")

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	e.chain.waitStreams(t, 2)

	spec := PlinkoSpec()
	requested, settled := sigEvent(t, spec.Signatures[0]), sigEvent(t, spec.Signatures[1])
	e.chain.emit(encode(t, requested, logOpts{contract: game, block: 101, tx: r.TxHash, indexed: []common.Hash{addrTopic(w.from)}},
		uint64(8), big.NewInt(1), uint8(12)))
	require.Eventually(t, func() bool { return r.State() == SequenceKnown }, 2*time.Second, 2*time.Millisecond)

	stale := func(seq uint64, tx byte) {
		e.chain.emit(encode(t, settled, logOpts{contract: game, block: 102, tx: common.Hash{tx}, indexed: []common.Hash{addrTopic(w.from)}},
			seq, big.NewInt(1), uint8(12), big.NewInt(0), big.NewInt(2)))
	}
	stale(7, 0x01)
	stale(8, 0x02)

	rec, err := waitResult(t, r)
	require.NoError(t, err)
	assert.Equal(t, int64(8), rec.CorrelationKey.Int64())
}

func TestTrack_TimesOut(t *testing.T) {
	e := setup(t, PlinkoSpec(), WithTimeout(10*time.Millisecond, 5))
	w := newWallet("0x4444444444444444444444444444444444444444")

	start := time.Now()
	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)

	rec, err := waitResult(t, r)
	elapsed := time.Since(start)
	assert.Nil(t, rec)
	require.ErrorIs(t, err, ErrTimeout)
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, r.TxHash, te.TxHash)
	assert.Equal(t, 50*time.Millisecond, te.After)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, TimedOut, r.State())
	assert.Empty(t, e.tr.Pending())

	// a settlement arriving after the deadline does not revive the request
	e.chain.waitStreams(t, 2)
	settled := sigEvent(t, PlinkoSpec().Signatures[1])
	e.chain.emit(encode(t, settled, logOpts{contract: game, block: 130, tx: common.Hash{0x0e}, indexed: []common.Hash{addrTopic(w.from)}},
		uint64(3), big.NewInt(1), uint8(12), big.NewInt(3), big.NewInt(1)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, TimedOut, r.State())
	_, err = r.Result()
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, e.chain.subscribeCalls())
}

func TestTrack_DuplicateDeliveryResolvesOnce(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x5555555555555555555555555555555555555555")

	first, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	e.chain.waitStreams(t, 2)

	settled := sigEvent(t, PlinkoSpec().Signatures[1])
	dup := encode(t, settled, logOpts{contract: game, block: 120, tx: common.Hash{0x0d}, index: 3, indexed: []common.Hash{addrTopic(w.from)}},
		uint64(1), big.NewInt(1), uint8(12), big.NewInt(3), big.NewInt(1))
	e.chain.emit(dup)
	rec, err := waitResult(t, first)
	require.NoError(t, err)
	assert.Equal(t, Settled, first.State())

	// a second request would accept the replayed log on address alone
	second, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	assert.Equal(t, 2, e.chain.subscribeCalls())
	e.chain.emit(dup)
	e.chain.emit(dup)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Submitted, second.State())
	again, err := first.Result()
	require.NoError(t, err)
	assert.Same(t, rec, again)
}

func TestTrack_SupersedesOlderRequest(t *testing.T) {
	logs := &syncBuffer{}
	e := setup(t, PlinkoSpec(), WithLogger(zerolog.New(logs)))
	w := newWallet("0x6666666666666666666666666666666666666666")

	older, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	newer, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)

	_, err = waitResult(t, older)
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, Abandoned, older.State())
	require.Len(t, e.tr.Pending(), 1)
	assert.Equal(t, newer.ID, e.tr.Pending()[0].ID)
	e.chain.waitStreams(t, 2)

	spec := PlinkoSpec()
	requested, settled := sigEvent(t, spec.Signatures[0]), sigEvent(t, spec.Signatures[1])
	e.chain.emit(encode(t, requested, logOpts{contract: game, block: 101, tx: newer.TxHash, indexed: []common.Hash{addrTopic(w.from)}},
		uint64(2), big.NewInt(1), uint8(12)))
	require.Eventually(t, func() bool { return newer.State() == SequenceKnown }, 2*time.Second, 2*time.Millisecond)

	// the older request's settlement arrives late
	e.chain.emit(encode(t, settled, logOpts{contract: game, block: 105, tx: common.Hash{0x0a}, indexed: []common.Hash{addrTopic(w.from)}},
		uint64(1), big.NewInt(1), uint8(12), big.NewInt(3), big.NewInt(1)))
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Lost settlement")
	}, 2*time.Second, 2*time.Millisecond)
	assert.Contains(t, logs.String(), older.ID)
	assert.Equal(t, SequenceKnown, newer.State())

	e.chain.emit(encode(t, settled, logOpts{contract: game, block: 106, tx: common.Hash{0x0b}, indexed: []common.Hash{addrTopic(w.from)}},
		uint64(2), big.NewInt(1), uint8(12), big.NewInt(4), big.NewInt(1)))
	rec, err := waitResult(t, newer)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.CorrelationKey.Int64())
}

func TestTrack_SequentialRequestsShareSubscription(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x1515151515151515151515151515151515151515")
	settled := sigEvent(t, PlinkoSpec().Signatures[1])

	for i := 0; i < 3; i++ {
		r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
		require.NoError(t, err)
		e.chain.waitStreams(t, 2)
		e.chain.emit(encode(t, settled, logOpts{contract: game, block: uint64(110 + i), tx: common.Hash{byte(0x20 + i)}, indexed: []common.Hash{addrTopic(w.from)}},
			uint64(i), big.NewInt(1), uint8(12), big.NewInt(0), big.NewInt(1)))
		rec, err := waitResult(t, r)
		require.NoError(t, err)
		assert.Equal(t, int64(i), rec.CorrelationKey.Int64())
	}

	assert.Equal(t, 2, e.chain.subscribeCalls())
	assert.Equal(t, 2, e.hub.Sources())

	require.NoError(t, e.tr.Close(context.Background()))
	assert.Equal(t, 0, e.hub.Sources())
	e.chain.waitStreams(t, 0)
}

func TestTrack_KeyOnlyFromOwnTransaction(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x1616161616161616161616161616161616161616")

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	e.chain.waitStreams(t, 2)

	spec := PlinkoSpec()
	requested, settled := sigEvent(t, spec.Signatures[0]), sigEvent(t, spec.Signatures[1])
	player := []common.Hash{addrTopic(w.from)}

	// the same player's bet from another transaction
	e.chain.emit(encode(t, requested, logOpts{contract: game, block: 101, tx: common.Hash{0x99}, indexed: player},
		uint64(99), big.NewInt(1), uint8(12)))
	e.chain.emit(encode(t, requested, logOpts{contract: game, block: 101, tx: r.TxHash, index: 1, indexed: player},
		uint64(5), big.NewInt(1), uint8(12)))
	require.Eventually(t, func() bool { return r.State() == SequenceKnown }, 2*time.Second, 2*time.Millisecond)
	key, ok := r.CorrelationKey()
	require.True(t, ok)
	assert.Equal(t, int64(5), key.Int64())

	e.chain.emit(encode(t, settled, logOpts{contract: game, block: 103, tx: common.Hash{0x05}, indexed: player},
		uint64(5), big.NewInt(1), uint8(12), big.NewInt(2), big.NewInt(1)))
	rec, err := waitResult(t, r)
	require.NoError(t, err)
	assert.Equal(t, Settled, r.State())
	assert.Equal(t, int64(5), rec.CorrelationKey.Int64())
}

func TestTrack_KeylessSettlementNeedsUnknownKey(t *testing.T) {
	spec := EventSpec{
		Signatures: []string{
			"RequestSubmitted(uint64 seq, address indexed requester)",
			"RequestSettled(address indexed requester, uint256 outcome)",
		},
		Submitted:      "RequestSubmitted",
		Fulfilled:      "RequestSettled",
		RequesterField: "requester",
		KeyField:       "seq",
	}
	e := setup(t, spec, WithTimeout(100*time.Millisecond, 5))
	w := newWallet("0x1717171717171717171717171717171717171717")
	submitted, settled := sigEvent(t, spec.Signatures[0]), sigEvent(t, spec.Signatures[1])
	requester := []common.Hash{addrTopic(w.from)}

	// no key observed yet: the requester alone matches
	first, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	e.chain.waitStreams(t, 2)
	e.chain.emit(encode(t, settled, logOpts{contract: game, block: 102, tx: common.Hash{0x01}, indexed: requester}, big.NewInt(7)))
	_, err = waitResult(t, first)
	require.NoError(t, err)

	// once the key is known a settlement without one is not this request's
	second, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	e.chain.emit(encode(t, submitted, logOpts{contract: game, block: 103, tx: second.TxHash, indexed: requester}, uint64(42)))
	require.Eventually(t, func() bool { return second.State() == SequenceKnown }, 2*time.Second, 2*time.Millisecond)
	e.chain.emit(encode(t, settled, logOpts{contract: game, block: 104, tx: common.Hash{0x02}, indexed: requester}, big.NewInt(8)))

	_, err = waitResult(t, second)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestTrack_SubmissionError(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x7777777777777777777777777777777777777777")
	w.sendErr = errRejected

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	assert.Nil(t, r)
	require.ErrorIs(t, err, ErrSubmission)
	require.ErrorIs(t, err, errRejected)
	var se *SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, w.from, se.Requester)

	assert.Empty(t, e.tr.Pending())
	assert.Equal(t, 2, e.hub.Sources(), "subscriptions are held until Close")
}

func TestRequest_Cancel(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x8888888888888888888888888888888888888888")

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	r.Cancel()
	r.Cancel()

	_, err = waitResult(t, r)
	require.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, Abandoned, r.State())
	assert.Equal(t, 2, e.hub.Sources())
	assert.Empty(t, e.tr.Pending())

	e.chain.waitStreams(t, 2)
	settled := sigEvent(t, PlinkoSpec().Signatures[1])
	e.chain.emit(encode(t, settled, logOpts{contract: game, block: 130, tx: common.Hash{0x0f}, indexed: []common.Hash{addrTopic(w.from)}},
		uint64(4), big.NewInt(1), uint8(12), big.NewInt(3), big.NewInt(1)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Abandoned, r.State())
}

func TestTrack_CallerContextCancels(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x8888888888888888888888888888888888888888")

	ctx, cancel := context.WithCancel(context.Background())
	r, err := e.tr.Track(ctx, w, signer.Call{To: game})
	require.NoError(t, err)
	cancel()

	_, err = waitResult(t, r)
	require.ErrorIs(t, err, ErrCanceled)
}

func TestRequest_WaitGivesUpWithoutCanceling(t *testing.T) {
	e := setup(t, PlinkoSpec())
	r, err := e.tr.Track(context.Background(), newWallet("0x9999999999999999999999999999999999999999"), signer.Call{To: game})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Submitted, r.State())
	assert.Len(t, e.tr.Pending(), 1)
}

func TestTrack_KeyFromReceiptAndKeyOnlyFulfillment(t *testing.T) {
	e := setup(t, EntropySpec(), WithFulfillmentContract(entropy))
	w := newWallet("0x1212121212121212121212121212121212121212")

	hash := w.nextHash()
	requested := jsonEvent(t, entropyABI, "BeastMintRequested")
	reqLog := encode(t, requested, logOpts{contract: game, block: 100, tx: hash, indexed: []common.Hash{common.BigToHash(big.NewInt(77))}},
		uint32(300000), true, uint64(1234))
	tl := reqLog.ToTypesLog()
	w.setReceipt(hash, &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100), Logs: []*types.Log{&tl}})

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)
	require.Equal(t, hash, r.TxHash)
	require.Eventually(t, func() bool { return r.State() == SequenceKnown }, 2*time.Second, 2*time.Millisecond)
	e.chain.waitStreams(t, 2)

	revealed := jsonEvent(t, entropyABI, "Revealed")
	reveal := func(seq uint64, tx byte) {
		e.chain.emit(encode(t, revealed, logOpts{
			contract: entropy, block: 103, tx: common.Hash{tx},
			indexed: []common.Hash{addrTopic(common.Address{0x01}), addrTopic(game), common.BigToHash(new(big.Int).SetUint64(seq))},
		}, [32]byte{0x42}, [32]byte{}, [32]byte{}, false, []byte{}, uint32(21000), []byte{}))
	}
	reveal(1233, 0x01)
	reveal(1234, 0x02)

	rec, err := waitResult(t, r)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), rec.CorrelationKey.Int64())
	assert.Equal(t, [32]byte{0x42}, rec.Payload["randomNumber"])
	assert.Equal(t, false, rec.Payload["callbackFailed"])
}

func TestTrack_BackfillFindsEarlySettlement(t *testing.T) {
	e := setup(t, PlinkoSpec())
	w := newWallet("0x1313131313131313131313131313131313131313")
	hash := w.nextHash()
	w.setReceipt(hash, &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)})

	settled := sigEvent(t, PlinkoSpec().Signatures[1])
	e.chain.mu.Lock()
	e.chain.head = 104
	e.chain.history = append(e.chain.history,
		encode(t, settled, logOpts{contract: game, block: 90, tx: common.Hash{0x01}, indexed: []common.Hash{addrTopic(w.from)}},
			uint64(1), big.NewInt(1), uint8(12), big.NewInt(0), big.NewInt(1)),
		encode(t, settled, logOpts{contract: game, block: 102, tx: common.Hash{0x02}, indexed: []common.Hash{addrTopic(w.from)}},
			uint64(2), big.NewInt(1), uint8(12), big.NewInt(0), big.NewInt(1)),
	)
	e.chain.mu.Unlock()

	r, err := e.tr.Track(context.Background(), w, signer.Call{To: game})
	require.NoError(t, err)

	rec, err := waitResult(t, r)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0x02}, rec.Raw.TxHash, "history before the receipt block is not replayed")
}

func TestTracker_CloseAbandonsPending(t *testing.T) {
	e := setup(t, PlinkoSpec())
	r, err := e.tr.Track(context.Background(), newWallet("0x1414141414141414141414141414141414141414"), signer.Call{To: game})
	require.NoError(t, err)

	require.NoError(t, e.tr.Close(context.Background()))
	_, err = waitResult(t, r)
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, e.hub.Sources())

	_, err = e.tr.Track(context.Background(), newWallet("0x1414141414141414141414141414141414141414"), signer.Call{To: game})
	require.ErrorIs(t, err, ErrClosed)
}

func TestNew_ValidatesSpec(t *testing.T) {
	c, h := &fakeChain{}, hub.New()
	defer h.Close(context.Background())

	_, err := New(c, h, game, EventSpec{Signatures: []string{fulfilledSig}, Fulfilled: "Missing", KeyField: "seq"})
	require.Error(t, err)

	_, err = New(c, h, game, EventSpec{Signatures: []string{fulfilledSig}, Fulfilled: "RequestFulfilled"})
	require.Error(t, err)

	_, err = New(c, h, game, EventSpec{Signatures: []string{"Bad("}, Fulfilled: "RequestFulfilled", KeyField: "seq"})
	require.Error(t, err)
}

func TestConfig_Timeout(t *testing.T) {
	assert.Equal(t, time.Minute, DefaultConfig().Timeout())
	assert.Equal(t, 5*time.Minute, Config{Interval: 10 * time.Second, Attempts: 30}.Timeout())
	assert.Equal(t, time.Second, Config{Interval: time.Second}.Timeout())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "sequence_known", SequenceKnown.String())
	assert.True(t, TimedOut.Terminal())
	assert.False(t, SequenceKnown.Terminal())
}

package tracker

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hedeqiang/fathom/decoder"
	"github.com/hedeqiang/fathom/event"
)

// State is the lifecycle position of a tracked request.
type State int

const (
	// Submitted: the transaction was accepted, the correlation key is unknown.
	Submitted State = iota
	// SequenceKnown: the correlation key was observed.
	SequenceKnown
	// Settled: a matching fulfillment was observed. Terminal.
	Settled
	// TimedOut: the budget elapsed first. Terminal.
	TimedOut
	// Abandoned: superseded, canceled or closed before resolving. Terminal.
	Abandoned
)

func (s State) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case SequenceKnown:
		return "sequence_known"
	case Settled:
		return "settled"
	case TimedOut:
		return "timed_out"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s >= Settled
}

// correlationKey is a sequence number that may not be known yet.
type correlationKey struct {
	v *big.Int
}

func (k correlationKey) known() bool { return k.v != nil }

func (k correlationKey) equal(o correlationKey) bool {
	return k.v != nil && o.v != nil && k.v.Cmp(o.v) == 0
}

func (k correlationKey) String() string {
	if k.v == nil {
		return "unknown"
	}
	return k.v.String()
}

// SettlementRecord is the observed fulfillment of a request.
type SettlementRecord struct {
	CorrelationKey *big.Int

	// Payload holds the fulfillment's fields other than the requester and key.
	Payload map[string]interface{}

	// Event is the full decoded fulfillment, for Bind.
	Event *decoder.DecodedEvent

	Raw        event.Log
	ObservedAt time.Time
}

// Bind copies the fulfillment's fields into the struct out points to.
func (s *SettlementRecord) Bind(out interface{}) error {
	return s.Event.Bind(out)
}

// PendingRequest is a snapshot of an unresolved request.
type PendingRequest struct {
	ID             string
	Requester      common.Address
	TxHash         common.Hash
	SubmittedAt    time.Time
	CorrelationKey *big.Int
	State          State
}

// Request is one tracked oracle request.
type Request struct {
	ID          string
	Requester   common.Address
	TxHash      common.Hash
	SubmittedAt time.Time

	tracker *Tracker
	done    chan struct{}
	stop    context.CancelFunc // ends key discovery
	timer   *time.Timer

	// guarded by tracker.mu
	state  State
	key    correlationKey
	record *SettlementRecord
	err    error
}

// Done is closed once the request resolves.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// State returns the current state.
func (r *Request) State() State {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	return r.state
}

// CorrelationKey returns the sequence number once it is known.
func (r *Request) CorrelationKey() (*big.Int, bool) {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	return r.key.v, r.key.known()
}

// Wait blocks until the request resolves or ctx is done. Giving up on ctx
// does not cancel the request; call Cancel for that.
func (r *Request) Wait(ctx context.Context) (*SettlementRecord, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a resolved request, or nil, nil before that.
func (r *Request) Result() (*SettlementRecord, error) {
	select {
	case <-r.done:
	default:
		return nil, nil
	}
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	return r.record, r.err
}

// Cancel stops waiting: the timer stops and the request no longer receives
// events. The on-chain transaction is unaffected.
func (r *Request) Cancel() {
	r.tracker.abandon(r, ErrCanceled)
}

func (r *Request) snapshot() PendingRequest {
	return PendingRequest{
		ID:             r.ID,
		Requester:      r.Requester,
		TxHash:         r.TxHash,
		SubmittedAt:    r.SubmittedAt,
		CorrelationKey: r.key.v,
		State:          r.state,
	}
}

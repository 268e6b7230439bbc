package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrSubmission is matched by errors.Is for every *SubmissionError.
	ErrSubmission = errors.New("tracker: submission failed")

	// ErrTimeout is matched by errors.Is for every *TimeoutError.
	ErrTimeout = errors.New("tracker: no fulfillment within budget")

	// ErrSuperseded resolves a request abandoned by a newer Track for the
	// same requester.
	ErrSuperseded = errors.New("tracker: superseded by a newer request")

	// ErrCanceled resolves a request the caller stopped waiting for.
	ErrCanceled = errors.New("tracker: request canceled")

	// ErrClosed is returned by Track after Close, and resolves requests
	// still pending when the tracker closes.
	ErrClosed = errors.New("tracker: closed")
)

// SubmissionError reports that the wallet could not send the request
// transaction. No request is tracked.
type SubmissionError struct {
	Requester common.Address
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("tracker: submit for %s: %v", e.Requester.Hex(), e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSubmission.
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// TimeoutError resolves a request with no matching fulfillment in time. The
// transaction may still settle later.
type TimeoutError struct {
	Requester common.Address
	TxHash    common.Hash
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tracker: no fulfillment for tx %s after %s", e.TxHash.Hex(), e.After)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

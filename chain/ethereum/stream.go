package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hedeqiang/fathom/chain"
	"github.com/hedeqiang/fathom/event"
)

var errStreamEnded = errors.New("ethereum: subscription closed by transport")

var _ chain.Subscription = (*logStream)(nil)

// logStream turns eth_subscription notifications into event logs. Both
// channels are closed once the stream ends.
type logStream struct {
	chainID string
	logs    chan event.Log
	errs    chan error
	ctx     context.Context
	cancel  context.CancelFunc
}

func newLogStream(chainID string, raw <-chan []byte, unsub func()) *logStream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &logStream{
		chainID: chainID,
		logs:    make(chan event.Log, 64),
		errs:    make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	if unsub != nil {
		context.AfterFunc(ctx, unsub)
	}
	go s.pump(raw)
	return s
}

func (s *logStream) Logs() <-chan event.Log { return s.logs }

func (s *logStream) Err() <-chan error { return s.errs }

func (s *logStream) Unsubscribe() { s.cancel() }

func (s *logStream) pump(raw <-chan []byte) {
	defer close(s.errs)
	defer close(s.logs)

	for {
		var msg []byte
		select {
		case <-s.ctx.Done():
			return
		case m, ok := <-raw:
			if !ok {
				s.fail(errStreamEnded)
				return
			}
			msg = m
		}

		log, err := decodeNotification(s.chainID, msg)
		if err != nil {
			s.fail(err)
			continue
		}
		select {
		case s.logs <- log:
		case <-s.ctx.Done():
			return
		}
	}
}

// fail reports err unless the stream was stopped or an error is pending.
func (s *logStream) fail(err error) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

func decodeNotification(chainID string, msg []byte) (event.Log, error) {
	var n struct {
		Result *types.Log `json:"result"`
	}
	if err := json.Unmarshal(msg, &n); err != nil {
		return event.Log{}, fmt.Errorf("ethereum: decode notification: %w", err)
	}
	if n.Result == nil {
		return event.Log{}, fmt.Errorf("ethereum: notification without result: %.64s", msg)
	}
	return event.FromTypesLog(chainID, *n.Result), nil
}

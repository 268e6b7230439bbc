package middleware

import (
	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom/event"
)

// Logger logs each event log that passes through the pipeline at debug
// level, and the logs later middleware dropped.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a logging middleware.
func NewLogger(l zerolog.Logger) *Logger {
	return &Logger{logger: l.With().Str("component", "pipeline").Logger()}
}

// Wrap decorates the handler with event logging.
func (l *Logger) Wrap(next Handler) Handler {
	return func(lg event.Log) *event.Log {
		ev := l.logger.Debug().
			Str("chain", lg.Chain).
			Uint64("block", lg.BlockNumber).
			Str("tx", lg.TxHash.Hex()).
			Uint("log_index", lg.LogIndex).
			Str("address", lg.Address.Hex()).
			Str("topic0", lg.EventSignature().Hex())
		if lg.Removed {
			ev = ev.Bool("removed", true)
		}
		ev.Msg("Event received")

		out := next(lg)
		if out == nil {
			l.logger.Debug().Str("tx", lg.TxHash.Hex()).Uint("log_index", lg.LogIndex).Msg("Event dropped")
		}
		return out
	}
}

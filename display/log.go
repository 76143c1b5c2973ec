package display

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

// Log is a headless sink: it counts frames and logs each one at debug level.
type Log struct {
	logger    *slog.Logger
	displayed atomic.Uint64
	bytes     atomic.Uint64
	lastSeq   atomic.Uint64
}

// NewLog returns a Log sink. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Display records f.
func (l *Log) Display(ctx context.Context, f *frame.Raw) error {
	l.displayed.Add(1)
	l.bytes.Add(uint64(len(f.Data)))
	l.lastSeq.Store(f.Seq)

	l.logger.Debug("display: frame",
		"seq", f.Seq,
		"trace_id", f.TraceID,
		"resolution", f.Resolution(),
		"source", f.Source,
	)
	return nil
}

// Close is a no-op.
func (l *Log) Close() error {
	l.logger.Info("display: log sink closed",
		"frames", l.displayed.Load(),
		"last_seq", l.lastSeq.Load(),
	)
	return nil
}

// Stats returns frames displayed, bytes received and the last sequence number.
func (l *Log) Stats() (frames, bytes, lastSeq uint64) {
	return l.displayed.Load(), l.bytes.Load(), l.lastSeq.Load()
}

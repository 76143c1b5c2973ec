package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/pixfmt"
)

// produce runs the producer loop until ctx is cancelled, the source becomes
// unavailable, or a configuration error is detected. The caller closes the
// channel when produce returns.
func (p *Pipeline) produce(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline: producer stopping (context cancelled)")
			return nil
		}

		raw, err := p.src.TryCapture(ctx, p.cfg.CaptureTimeout)
		if err != nil {
			switch {
			case errors.Is(err, capture.ErrTimedOut):
				p.timeouts.Add(1)
				p.logger.Warn("pipeline: capture timed out, retrying",
					"timeout", p.cfg.CaptureTimeout,
				)
				continue
			case ctx.Err() != nil:
				p.logger.Info("pipeline: producer stopping (context cancelled)")
				return nil
			case errors.Is(err, capture.ErrUnavailable):
				p.logger.Info("pipeline: source unavailable, producer stopping", "error", err)
				return nil
			default:
				p.logger.Error("pipeline: capture failed, producer stopping", "error", err)
				return nil
			}
		}

		p.captured.Add(1)
		p.lastFrameAt.Store(time.Now().UnixNano())
		p.observe(raw.Seq, frame.StateCaptured)

		f, err := pixfmt.ToIntensity(raw)
		if err != nil {
			if errors.Is(err, pixfmt.ErrChannelCount) {
				p.logger.Error("pipeline: source delivers unsupported pixel format",
					"seq", raw.Seq,
					"channels", raw.Channels,
					"error", err,
				)
				p.observe(raw.Seq, frame.StateDiscarded)
				return fmt.Errorf("pipeline: frame %d: %w", raw.Seq, err)
			}
			p.rejected.Add(1)
			p.logger.Warn("pipeline: frame rejected",
				"seq", raw.Seq,
				"resolution", raw.Resolution(),
				"bytes", len(raw.Data),
				"error", err,
			)
			p.observe(raw.Seq, frame.StateDiscarded)
			continue
		}

		if !p.enqueue(ctx, f) {
			p.observe(f.Seq, frame.StateDiscarded)
			p.logger.Info("pipeline: producer stopping (context cancelled)")
			return nil
		}
	}
}

// enqueue hands f to the consumer according to the overflow policy.
// It returns false if ctx was cancelled before f could be enqueued.
func (p *Pipeline) enqueue(ctx context.Context, f *frame.Intensity) bool {
	// Reported before the send: once sent, f belongs to the consumer and
	// may be Dequeued immediately.
	seq := f.Seq
	p.observe(seq, frame.StateEnqueued)

	switch p.cfg.Overflow {
	case OverflowDropOldest:
		select {
		case p.frames <- f:
			p.enqueued.Add(1)
			return true
		default:
		}

		// Full. The producer is the only sender, so after removing one
		// frame the send below cannot block.
		select {
		case old := <-p.frames:
			p.droppedOldest.Add(1)
			p.logger.Warn("pipeline: queue full, dropped oldest frame",
				"dropped_seq", old.Seq,
				"seq", seq,
				"queue_capacity", cap(p.frames),
			)
			p.observe(old.Seq, frame.StateDiscarded)
		default:
		}
		p.frames <- f
		p.enqueued.Add(1)
		return true

	default:
		select {
		case p.frames <- f:
			p.enqueued.Add(1)
			return true
		case <-ctx.Done():
			return false
		}
	}
}

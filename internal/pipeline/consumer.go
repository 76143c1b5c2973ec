package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/pixfmt"
)

// consume runs until the channel is closed and drained.
func (p *Pipeline) consume(ctx context.Context) {
	for f := range p.frames {
		p.observe(f.Seq, frame.StateDequeued)
		p.process(ctx, f)
	}
	p.logger.Debug("pipeline: consumer drained")
}

// process filters f in place and hands the displayable copy to the sink.
// The consumer holds exclusive ownership of f for the whole call.
func (p *Pipeline) process(ctx context.Context, f *frame.Intensity) {
	start := time.Now()

	values, err := p.cfg.Engine.Apply(ctx, pixfmt.Widen(f), p.cfg.Kernel)
	if err != nil {
		// The producer validated the frame and ctx never cancels here, so
		// the engine has nothing left to fail on.
		panic(fmt.Sprintf("pipeline: convolution of frame %d failed: %v", f.Seq, err))
	}
	pixfmt.Rewrite(f, values)

	elapsed := time.Since(start)
	p.filterNanos.Add(elapsed.Nanoseconds())
	p.filtered.Add(1)
	p.observe(f.Seq, frame.StateFiltered)

	out, err := pixfmt.ToDisplayable(f, p.cfg.DisplayWidth, p.cfg.DisplayHeight)
	if err != nil {
		panic(fmt.Sprintf("pipeline: frame %d lost its shape after filtering: %v", f.Seq, err))
	}

	if err := p.sink.Display(ctx, out); err != nil {
		p.displayErrors.Add(1)
		p.logger.Warn("pipeline: display failed",
			"seq", f.Seq,
			"trace_id", f.TraceID,
			"error", err,
		)
	} else {
		p.displayed.Add(1)
		p.observe(f.Seq, frame.StateDisplayed)
		p.logger.Debug("pipeline: frame displayed",
			"seq", f.Seq,
			"trace_id", f.TraceID,
			"filter_latency", elapsed,
			"queue_depth", len(p.frames),
		)
	}

	p.observe(f.Seq, frame.StateDiscarded)
}

// Package pipeline implements the producer/consumer frame pipeline.
//
// This package is INTERNAL - clients use the re-exports in the root
// framefilter package.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

// ErrAlreadyStarted is returned by a second call to Run.
var ErrAlreadyStarted = errors.New("pipeline: already started")

// Pipeline moves frames from a Source through the convolution engine to a
// Sink.
//
// Goroutine topology (while Run is active):
//   - producer: Source → ToIntensity → channel
//   - consumer: channel → Engine → Rewrite → ToDisplayable → Sink
//   - engine band goroutines, transient, inside the consumer's ownership window
//
// The channel is the only shared state. A frame is owned by the producer
// until the send completes and by the consumer from the receive onwards.
type Pipeline struct {
	cfg    Config
	src    Source
	sink   Sink
	logger *slog.Logger

	frames chan *frame.Intensity

	started atomic.Bool
	running atomic.Bool
	startAt atomic.Int64 // unix nanos

	captured      atomic.Uint64
	timeouts      atomic.Uint64
	rejected      atomic.Uint64
	enqueued      atomic.Uint64
	droppedOldest atomic.Uint64
	filtered      atomic.Uint64
	displayed     atomic.Uint64
	displayErrors atomic.Uint64
	filterNanos   atomic.Int64
	lastFrameAt   atomic.Int64 // unix nanos
}

// New validates cfg, applies defaults and returns a pipeline ready to Run.
func New(cfg Config, src Source, sink Sink) (*Pipeline, error) {
	if cfg.Kernel == nil {
		return nil, fmt.Errorf("pipeline: kernel is required")
	}
	if src == nil {
		return nil, fmt.Errorf("pipeline: source is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("pipeline: sink is required")
	}
	if cfg.Capacity < 0 {
		return nil, fmt.Errorf("pipeline: capacity must be >= 1, got %d", cfg.Capacity)
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.CaptureTimeout < 0 {
		return nil, fmt.Errorf("pipeline: capture timeout must be positive, got %v", cfg.CaptureTimeout)
	}
	if cfg.CaptureTimeout == 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	if cfg.DisplayWidth < 0 || cfg.DisplayHeight < 0 {
		return nil, fmt.Errorf("pipeline: display size must not be negative, got %dx%d",
			cfg.DisplayWidth, cfg.DisplayHeight)
	}
	if cfg.Overflow != OverflowBlock && cfg.Overflow != OverflowDropOldest {
		return nil, fmt.Errorf("pipeline: invalid overflow policy %v", cfg.Overflow)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:    cfg,
		src:    src,
		sink:   sink,
		logger: logger,
		frames: make(chan *frame.Intensity, cfg.Capacity),
	}, nil
}

// Run starts the producer and consumer and blocks until both have exited.
//
// Shutdown happens when ctx is cancelled or the source becomes unavailable.
// The producer then closes the channel and the consumer drains every
// buffered frame to the sink before Run returns. Cancellation is an orderly
// shutdown, so Run returns nil for it.
//
// Run returns a non-nil error only for configuration errors detected on the
// first frames (wrong channel count) or ErrAlreadyStarted.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	p.startAt.Store(time.Now().UnixNano())
	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.Info("pipeline: starting",
		"kernel", p.cfg.Kernel.String(),
		"edge", p.cfg.Engine.Edge.String(),
		"workers", p.cfg.Engine.Workers,
		"capacity", p.cfg.Capacity,
		"overflow", p.cfg.Overflow.String(),
		"capture_timeout", p.cfg.CaptureTimeout,
	)

	var (
		wg          sync.WaitGroup
		producerErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(p.frames)
		producerErr = p.produce(ctx)
	}()
	go func() {
		defer wg.Done()
		// Drain with a context that outlives cancellation so buffered
		// frames still reach the sink.
		p.consume(context.WithoutCancel(ctx))
	}()
	wg.Wait()

	s := p.Stats()
	p.logger.Info("pipeline: stopped",
		"captured", s.Captured,
		"filtered", s.Filtered,
		"displayed", s.Displayed,
		"dropped_oldest", s.DroppedOldest,
		"display_errors", s.DisplayErrors,
		"timeouts", s.Timeouts,
	)

	return producerErr
}

// Stats returns a snapshot of the counters. Safe to call concurrently with Run.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Captured:      p.captured.Load(),
		Timeouts:      p.timeouts.Load(),
		Rejected:      p.rejected.Load(),
		Enqueued:      p.enqueued.Load(),
		DroppedOldest: p.droppedOldest.Load(),
		Filtered:      p.filtered.Load(),
		Displayed:     p.displayed.Load(),
		DisplayErrors: p.displayErrors.Load(),
		QueueDepth:    len(p.frames),
		QueueCapacity: cap(p.frames),
		Running:       p.running.Load(),
	}
	if s.Filtered > 0 {
		s.AvgFilterLatency = time.Duration(p.filterNanos.Load() / int64(s.Filtered))
	}
	if ns := p.startAt.Load(); ns != 0 {
		s.Started = time.Unix(0, ns)
	}
	if ns := p.lastFrameAt.Load(); ns != 0 {
		s.LastFrameAt = time.Unix(0, ns)
	}
	return s
}

func (p *Pipeline) observe(seq uint64, s frame.State) {
	if p.cfg.Observer != nil {
		p.cfg.Observer(seq, s)
	}
	p.logger.Debug("pipeline: frame state", "seq", seq, "state", s.String())
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/convolve"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/kernel"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultCapacity       = 4
	DefaultCaptureTimeout = 5 * time.Second
)

// Source delivers raw frames.
//
// TryCapture blocks for at most timeout. It returns capture.ErrTimedOut when
// no frame arrived in time (transient) and capture.ErrUnavailable when the
// source is permanently gone (terminal).
type Source interface {
	TryCapture(ctx context.Context, timeout time.Duration) (*frame.Raw, error)
}

// Sink displays a filtered frame. Errors are logged and counted; they never
// stop the pipeline. The sink owns f after the call.
type Sink interface {
	Display(ctx context.Context, f *frame.Raw) error
}

// Observer is notified of every frame state transition.
//
// Producer-side and consumer-side transitions are reported from different
// goroutines, so an Observer must be safe for concurrent use. Transitions of
// a single frame are reported in order.
type Observer func(seq uint64, s frame.State)

// OverflowPolicy decides what the producer does when the channel is full.
type OverflowPolicy int

const (
	// OverflowBlock suspends the producer until the consumer frees a slot.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropOldest discards the oldest buffered frame to make room.
	OverflowDropOldest
)

// String returns the configuration name of the policy.
func (o OverflowPolicy) String() string {
	switch o {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop_oldest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(o))
	}
}

// ParseOverflowPolicy maps a configuration name to an OverflowPolicy.
// The empty string selects OverflowBlock.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "block":
		return OverflowBlock, nil
	case "drop_oldest", "drop-oldest":
		return OverflowDropOldest, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown overflow policy %q (want block or drop_oldest)", s)
	}
}

// Config holds pipeline parameters. Kernel is required.
type Config struct {
	Kernel *kernel.Kernel
	Engine convolve.Engine

	// Capacity is the number of frames the channel buffers (default 4).
	Capacity int
	Overflow OverflowPolicy

	// CaptureTimeout bounds each TryCapture call (default 5s).
	CaptureTimeout time.Duration

	// DisplayWidth and DisplayHeight size the frames handed to the sink.
	// Zero keeps the captured size.
	DisplayWidth  int
	DisplayHeight int

	Observer Observer
	Logger   *slog.Logger
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Captured      uint64 // frames delivered by the source
	Timeouts      uint64 // TryCapture calls that timed out
	Rejected      uint64 // frames the pixel format bridge refused (bad size)
	Enqueued      uint64
	DroppedOldest uint64 // frames discarded by OverflowDropOldest
	Filtered      uint64
	Displayed     uint64
	DisplayErrors uint64

	QueueDepth    int
	QueueCapacity int

	AvgFilterLatency time.Duration
	LastFrameAt      time.Time

	Started time.Time
	Running bool
}

package framefilter

import (
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/pipeline"
)

// Pipeline is re-exported from the internal package.
// See internal/pipeline/pipeline.go for full documentation.
type Pipeline = pipeline.Pipeline

// Config is re-exported from the internal package.
type Config = pipeline.Config

// Stats is re-exported from the internal package.
type Stats = pipeline.Stats

// Source delivers raw frames. See capture for implementations.
type Source = pipeline.Source

// Sink displays filtered frames. See display for implementations.
type Sink = pipeline.Sink

// Observer is notified of every frame state transition.
type Observer = pipeline.Observer

// OverflowPolicy decides what the producer does when the channel is full.
type OverflowPolicy = pipeline.OverflowPolicy

const (
	OverflowBlock      = pipeline.OverflowBlock
	OverflowDropOldest = pipeline.OverflowDropOldest
)

// Defaults applied by New.
const (
	DefaultCapacity       = pipeline.DefaultCapacity
	DefaultCaptureTimeout = pipeline.DefaultCaptureTimeout
)

// ErrAlreadyStarted is returned by a second call to Pipeline.Run.
var ErrAlreadyStarted = pipeline.ErrAlreadyStarted

// New validates cfg and returns a pipeline ready to Run.
//
// Lifecycle:
//  1. p, err := framefilter.New(cfg, src, sink)
//  2. err = p.Run(ctx)  // blocks until shutdown and drain
//  3. p.Stats()         // final counters
func New(cfg Config, src Source, sink Sink) (*Pipeline, error) {
	return pipeline.New(cfg, src, sink)
}

// ParseOverflowPolicy maps "block" or "drop_oldest" to an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	return pipeline.ParseOverflowPolicy(s)
}

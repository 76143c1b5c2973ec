// Package display provides sinks for filtered frames.
//
// Every sink receives BGR frames produced by the pixel format bridge and owns
// each frame after Display returns. Errors from Display are reported to the
// pipeline, which logs and counts them; they never stop filtering.
package display

import (
	"context"
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

// Sink is the full contract of a display sink.
type Sink interface {
	Display(ctx context.Context, f *frame.Raw) error
	Close() error
}

// Multi fans every frame out to several sinks.
//
// All sinks see every frame, even when an earlier one fails. Display returns
// the joined errors of the failing sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a sink that forwards to sinks in order.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Display forwards f to every sink.
//
// Sinks must not modify f: it is shared between them.
func (m *Multi) Display(ctx context.Context, f *frame.Raw) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Display(ctx, f); err != nil {
			errs = append(errs, fmt.Errorf("display: sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and returns the joined errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

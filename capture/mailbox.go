package capture

import (
	"context"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

// Mailbox holds the latest frame produced by a push-style device callback
// until a TryCapture call takes it.
//
// Put never blocks: an unread frame is replaced by the newer one. Device
// callbacks must not stall on a slow pipeline.
type Mailbox struct {
	slot chan *frame.Raw
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{slot: make(chan *frame.Raw, 1)}
}

// Put stores f and returns the frame it replaced, if any.
func (m *Mailbox) Put(f *frame.Raw) (replaced *frame.Raw) {
	for {
		select {
		case m.slot <- f:
			return replaced
		default:
		}
		select {
		case old := <-m.slot:
			replaced = old
		default:
		}
	}
}

// Take waits up to timeout for a frame.
//
// It returns ErrUnavailable once done is closed and the mailbox is empty,
// ErrTimedOut after timeout, or ctx.Err().
func (m *Mailbox) Take(ctx context.Context, timeout time.Duration, done <-chan struct{}) (*frame.Raw, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-m.slot:
		return f, nil
	case <-done:
		select {
		case f := <-m.slot:
			return f, nil
		default:
			return nil, ErrUnavailable
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimedOut
	}
}

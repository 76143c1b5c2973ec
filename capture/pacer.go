package capture

import (
	"context"
	"time"
)

// pacer spaces frame deliveries at a fixed interval. Not safe for concurrent
// use; callers hold their own lock.
type pacer struct {
	interval time.Duration
	nextDue  time.Time
}

func newPacer(fps float64) pacer {
	if fps <= 0 {
		return pacer{}
	}
	return pacer{interval: time.Duration(float64(time.Second) / fps)}
}

// wait blocks until the next delivery slot. If the slot is further away than
// timeout it waits out the timeout and returns ErrTimedOut without consuming
// the slot.
func (p *pacer) wait(ctx context.Context, timeout time.Duration) error {
	if p.interval == 0 {
		return ctx.Err()
	}

	now := time.Now()
	if p.nextDue.IsZero() {
		p.nextDue = now
	}

	wait := p.nextDue.Sub(now)
	timedOut := wait > timeout
	if timedOut {
		wait = timeout
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	if timedOut {
		return ErrTimedOut
	}

	// Late callers do not get a burst of catch-up frames.
	p.nextDue = p.nextDue.Add(p.interval)
	if after := time.Now(); p.nextDue.Before(after) {
		p.nextDue = after
	}
	return nil
}

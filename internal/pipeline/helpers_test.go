package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/kernel"
)

// scriptedSource replays a fixed list of capture results, then either
// reports ErrUnavailable or blocks until the context is cancelled.
type scriptedSource struct {
	mu      sync.Mutex
	steps   []step
	next    int
	seq     uint64
	holdOff bool // block after the script instead of reporting unavailable
}

type step struct {
	err      error
	channels int
}

func frames(n int) []step {
	steps := make([]step, n)
	return steps
}

func (s *scriptedSource) TryCapture(ctx context.Context, timeout time.Duration) (*frame.Raw, error) {
	s.mu.Lock()
	if s.next >= len(s.steps) {
		s.mu.Unlock()
		if s.holdOff {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, capture.ErrUnavailable
	}
	st := s.steps[s.next]
	s.next++
	if st.err != nil {
		s.mu.Unlock()
		return nil, st.err
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	ch := st.channels
	if ch == 0 {
		ch = 3
	}
	return &frame.Raw{
		Seq:       seq,
		Timestamp: time.Now(),
		TraceID:   fmt.Sprintf("trace-%d", seq),
		Source:    "scripted",
		Width:     8,
		Height:    8,
		Channels:  ch,
		Data:      make([]byte, 8*8*ch),
	}, nil
}

// recordingSink remembers displayed frames. When gate is non-nil every
// Display call waits for it to be closed.
type recordingSink struct {
	mu     sync.Mutex
	frames []*frame.Raw
	gate   chan struct{}
	failOn func(seq uint64) bool
}

func (s *recordingSink) Display(ctx context.Context, f *frame.Raw) error {
	if s.gate != nil {
		<-s.gate
	}
	if s.failOn != nil && s.failOn(f.Seq) {
		return fmt.Errorf("sink rejected frame %d", f.Seq)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) seqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Seq
	}
	return out
}

func mustKernel(t *testing.T, size int, sigma float64) *kernel.Kernel {
	t.Helper()
	k, err := kernel.Gaussian(size, sigma)
	if err != nil {
		t.Fatalf("kernel.Gaussian(%d, %v) failed: %v", size, sigma, err)
	}
	return k
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func seqRange(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for s := from; s <= to; s++ {
		out = append(out, s)
	}
	return out
}

package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/pixfmt"
)

// TestRun_FIFOOrder validates frames reach the sink in capture order.
//
// Scenario:
//  1. Source delivers frames 1..N, then becomes unavailable
//  2. Run returns once the consumer drained the channel
//  3. Assert: sink saw exactly 1..N in order
func TestRun_FIFOOrder(t *testing.T) {
	const n = 50

	src := &scriptedSource{steps: frames(n)}
	sink := &recordingSink{}

	p, err := pipeline.New(pipeline.Config{Kernel: mustKernel(t, 3, 1), Capacity: 2}, src, sink)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if diff := cmp.Diff(seqRange(1, n), sink.seqs()); diff != "" {
		t.Errorf("display order mismatch (-want +got):\n%s", diff)
	}

	stats := p.Stats()
	if stats.Captured != n || stats.Enqueued != n || stats.Filtered != n || stats.Displayed != n {
		t.Errorf("stats = %+v, want %d captured/enqueued/filtered/displayed", stats, n)
	}
	if stats.Running {
		t.Error("Running = true after Run returned")
	}
}

// TestRun_ShutdownDrainsBufferedFrames validates no buffered frame is lost
// when the stop signal is raised.
//
// Scenario:
//  1. Sink is blocked; source delivers N frames then waits for cancellation
//  2. Wait until all N frames are enqueued
//  3. Cancel the context, then unblock the sink
//  4. Assert: all N frames displayed, Run returns nil
func TestRun_ShutdownDrainsBufferedFrames(t *testing.T) {
	const n = 5

	src := &scriptedSource{steps: frames(n), holdOff: true}
	sink := &recordingSink{gate: make(chan struct{})}

	p, err := pipeline.New(pipeline.Config{Kernel: mustKernel(t, 3, 1), Capacity: n}, src, sink)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, "all frames enqueued", func() bool { return p.Stats().Enqueued == n })

	cancel()
	close(sink.gate)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if diff := cmp.Diff(seqRange(1, n), sink.seqs()); diff != "" {
		t.Errorf("drained frames mismatch (-want +got):\n%s", diff)
	}
}

// TestRun_CancelWithBusySource validates that every enqueued frame is
// displayed when an unlimited source is stopped mid-stream.
func TestRun_CancelWithBusySource(t *testing.T) {
	src, err := capture.NewSynthetic(capture.SyntheticConfig{Width: 16, Height: 12})
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}

	p, err := pipeline.New(pipeline.Config{Kernel: mustKernel(t, 5, 2)}, src, sink)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, "some frames displayed", func() bool { return p.Stats().Displayed >= 20 })
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	stats := p.Stats()
	if stats.Displayed != stats.Enqueued {
		t.Errorf("displayed %d of %d enqueued frames", stats.Displayed, stats.Enqueued)
	}
	got := sink.seqs()
	if diff := cmp.Diff(seqRange(1, uint64(len(got))), got); diff != "" {
		t.Errorf("display order mismatch (-want +got):\n%s", diff)
	}
	t.Logf("displayed %d frames, avg filter latency %v", stats.Displayed, stats.AvgFilterLatency)
}

// TestRun_DropOldest validates the explicit drop-oldest overflow policy.
//
// Contract:
//   - Every captured frame is either displayed or counted as dropped
//   - Displayed frames keep capture order
//   - The newest frame is never the one dropped
func TestRun_DropOldest(t *testing.T) {
	const n = 10

	src := &scriptedSource{steps: frames(n)}
	sink := &recordingSink{gate: make(chan struct{})}

	p, err := pipeline.New(pipeline.Config{
		Kernel:   mustKernel(t, 3, 1),
		Capacity: 2,
		Overflow: pipeline.OverflowDropOldest,
	}, src, sink)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	waitFor(t, "producer to enqueue every frame", func() bool { return p.Stats().Enqueued == n })
	close(sink.gate)

	if err := <-done; err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	stats := p.Stats()
	if stats.DroppedOldest == 0 {
		t.Error("DroppedOldest = 0, want > 0 with a blocked sink")
	}
	if stats.Displayed+stats.DroppedOldest != n {
		t.Errorf("displayed %d + dropped %d != %d captured", stats.Displayed, stats.DroppedOldest, n)
	}

	got := sink.seqs()
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Errorf("display order violated: %v", got)
			break
		}
	}
	if len(got) == 0 || got[len(got)-1] != n {
		t.Errorf("last displayed = %v, want %d", got, n)
	}
}

// TestRun_DisplayErrorsAreNonFatal validates sink failures are counted and skipped.
func TestRun_DisplayErrorsAreNonFatal(t *testing.T) {
	const n = 6

	src := &scriptedSource{steps: frames(n)}
	sink := &recordingSink{failOn: func(seq uint64) bool { return seq%2 == 1 }}

	p, err := pipeline.New(pipeline.Config{Kernel: mustKernel(t, 3, 1)}, src, sink)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	stats := p.Stats()
	if stats.Filtered != n {
		t.Errorf("Filtered = %d, want %d", stats.Filtered, n)
	}
	if stats.DisplayErrors != n/2 || stats.Displayed != n/2 {
		t.Errorf("DisplayErrors = %d, Displayed = %d, want %d each", stats.DisplayErrors, stats.Displayed, n/2)
	}
	if diff := cmp.Diff([]uint64{2, 4, 6}, sink.seqs()); diff != "" {
		t.Errorf("displayed frames mismatch (-want +got):\n%s", diff)
	}
}

// TestRun_TimeoutsAreTransient validates capture timeouts do not stop the producer.
func TestRun_TimeoutsAreTransient(t *testing.T) {
	steps := []step{
		{err: capture.ErrTimedOut},
		{},
		{err: capture.ErrTimedOut},
		{},
		{},
	}
	src := &scriptedSource{steps: steps}
	sink := &recordingSink{}

	p, err := pipeline.New(pipeline.Config{Kernel: mustKernel(t, 3, 1)}, src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats := p.Stats()
	if stats.Timeouts != 2 {
		t.Errorf("Timeouts = %d, want 2", stats.Timeouts)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3}, sink.seqs()); diff != "" {
		t.Errorf("displayed frames mismatch (-want +got):\n%s", diff)
	}
}

// TestRun_ChannelCountAborts validates a wrong pixel format is a
// configuration error surfaced by Run.
func TestRun_ChannelCountAborts(t *testing.T) {
	src := &scriptedSource{steps: []step{{}, {channels: 4}, {}}}
	sink := &recordingSink{}

	p, err := pipeline.New(pipeline.Config{Kernel: mustKernel(t, 3, 1)}, src, sink)
	if err != nil {
		t.Fatal(err)
	}

	err = p.Run(context.Background())
	if !errors.Is(err, pixfmt.ErrChannelCount) {
		t.Fatalf("Run() = %v, want %v", err, pixfmt.ErrChannelCount)
	}

	// The frame captured before the bad one is still drained.
	if diff := cmp.Diff([]uint64{1}, sink.seqs()); diff != "" {
		t.Errorf("displayed frames mismatch (-want +got):\n%s", diff)
	}
}

// TestRun_StateTransitionsAreMonotonic validates every frame walks the
// lifecycle forward and ends Discarded.
func TestRun_StateTransitionsAreMonotonic(t *testing.T) {
	const n = 20

	var (
		mu     sync.Mutex
		states = make(map[uint64][]frame.State)
	)
	observer := func(seq uint64, s frame.State) {
		mu.Lock()
		defer mu.Unlock()
		states[seq] = append(states[seq], s)
	}

	src := &scriptedSource{steps: frames(n)}
	p, err := pipeline.New(pipeline.Config{
		Kernel:   mustKernel(t, 3, 1),
		Observer: observer,
	}, src, &recordingSink{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []frame.State{
		frame.StateCaptured,
		frame.StateEnqueued,
		frame.StateDequeued,
		frame.StateFiltered,
		frame.StateDisplayed,
		frame.StateDiscarded,
	}

	mu.Lock()
	defer mu.Unlock()
	for seq := uint64(1); seq <= n; seq++ {
		got := states[seq]
		for i := 1; i < len(got); i++ {
			if !got[i-1].CanAdvance(got[i]) {
				t.Errorf("frame %d: %v → %v is not a forward transition", seq, got[i-1], got[i])
			}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("frame %d lifecycle mismatch (-want +got):\n%s", seq, diff)
		}
	}
}

// TestRun_EndToEndBlur validates filtered output values: a 5x5 sigma=1000
// kernel over a 10x10 frame of 200 yields 200 at interior points.
func TestRun_EndToEndBlur(t *testing.T) {
	src, err := capture.NewSynthetic(capture.SyntheticConfig{
		Width:   10,
		Height:  10,
		Pattern: capture.PatternConstant,
		Value:   200,
		Frames:  1,
	})
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}

	p, err := pipeline.New(pipeline.Config{Kernel: mustKernel(t, 5, 1000)}, src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(sink.frames) != 1 {
		t.Fatalf("sink received %d frames, want 1", len(sink.frames))
	}
	out := sink.frames[0]
	if out.Width != 10 || out.Height != 10 || out.Channels != 3 {
		t.Fatalf("output %dx%dx%d, want 10x10x3", out.Width, out.Height, out.Channels)
	}

	for _, pt := range [][2]int{{2, 2}, {5, 5}, {7, 3}} {
		i := (pt[1]*10 + pt[0]) * 3
		if diff := cmp.Diff([]byte{200, 200, 200}, out.Data[i:i+3]); diff != "" {
			t.Errorf("pixel %v (-want +got):\n%s", pt, diff)
		}
	}
	if out.Data[0] >= 200 {
		t.Errorf("corner = %d, want darkened below 200", out.Data[0])
	}
}

func TestRun_DisplayResize(t *testing.T) {
	src := &scriptedSource{steps: frames(2)}
	sink := &recordingSink{}

	p, err := pipeline.New(pipeline.Config{
		Kernel:        mustKernel(t, 3, 1),
		DisplayWidth:  16,
		DisplayHeight: 4,
	}, src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, f := range sink.frames {
		if f.Width != 16 || f.Height != 4 || len(f.Data) != 16*4*3 {
			t.Errorf("frame %d is %dx%d with %d bytes, want 16x4", f.Seq, f.Width, f.Height, len(f.Data))
		}
	}
}

func TestRun_OnlyOnce(t *testing.T) {
	p, err := pipeline.New(pipeline.Config{Kernel: mustKernel(t, 3, 1)}, &scriptedSource{}, &recordingSink{})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("first Run() = %v", err)
	}
	if err := p.Run(context.Background()); !errors.Is(err, pipeline.ErrAlreadyStarted) {
		t.Errorf("second Run() = %v, want %v", err, pipeline.ErrAlreadyStarted)
	}
}

func TestNew_Validation(t *testing.T) {
	k := mustKernel(t, 3, 1)
	src := &scriptedSource{}
	sink := &recordingSink{}

	tests := []struct {
		name string
		cfg  pipeline.Config
		src  pipeline.Source
		sink pipeline.Sink
	}{
		{"missing kernel", pipeline.Config{}, src, sink},
		{"missing source", pipeline.Config{Kernel: k}, nil, sink},
		{"missing sink", pipeline.Config{Kernel: k}, src, nil},
		{"negative capacity", pipeline.Config{Kernel: k, Capacity: -1}, src, sink},
		{"negative timeout", pipeline.Config{Kernel: k, CaptureTimeout: -time.Second}, src, sink},
		{"negative display size", pipeline.Config{Kernel: k, DisplayWidth: -1}, src, sink},
		{"unknown overflow", pipeline.Config{Kernel: k, Overflow: 7}, src, sink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := pipeline.New(tt.cfg, tt.src, tt.sink); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}

	p, err := pipeline.New(pipeline.Config{Kernel: k}, src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if s := p.Stats(); s.QueueCapacity != pipeline.DefaultCapacity {
		t.Errorf("QueueCapacity = %d, want %d", s.QueueCapacity, pipeline.DefaultCapacity)
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    pipeline.OverflowPolicy
		wantErr bool
	}{
		{"", pipeline.OverflowBlock, false},
		{"block", pipeline.OverflowBlock, false},
		{"drop_oldest", pipeline.OverflowDropOldest, false},
		{"drop-oldest", pipeline.OverflowDropOldest, false},
		{"drop_newest", 0, true},
	}
	for _, tt := range tests {
		got, err := pipeline.ParseOverflowPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOverflowPolicy(%q) = %v, %v; want %v, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

package capture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/recording"
)

func mustSynthetic(t *testing.T, cfg SyntheticConfig) *Synthetic {
	t.Helper()
	s, err := NewSynthetic(cfg)
	if err != nil {
		t.Fatalf("NewSynthetic(%+v) failed: %v", cfg, err)
	}
	return s
}

// TestSynthetic_Patterns validates the content of each pattern.
func TestSynthetic_Patterns(t *testing.T) {
	ctx := context.Background()

	t.Run("constant", func(t *testing.T) {
		s := mustSynthetic(t, SyntheticConfig{Width: 4, Height: 3, Pattern: PatternConstant, Value: 77})
		f, err := s.TryCapture(ctx, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if len(f.Data) != 4*3*3 {
			t.Fatalf("len(Data) = %d, want 36", len(f.Data))
		}
		for i, b := range f.Data {
			if b != 77 {
				t.Fatalf("Data[%d] = %d, want 77", i, b)
			}
		}
	})

	t.Run("checkerboard", func(t *testing.T) {
		s := mustSynthetic(t, SyntheticConfig{Width: 16, Height: 16, Pattern: PatternCheckerboard})
		f, err := s.TryCapture(ctx, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		at := func(x, y int) byte { return f.Data[(y*16+x)*3] }
		if at(0, 0) != 255 || at(8, 0) != 0 || at(0, 8) != 0 || at(8, 8) != 255 {
			t.Errorf("checkerboard corners = %d %d %d %d", at(0, 0), at(8, 0), at(0, 8), at(8, 8))
		}
	})

	t.Run("gradient shifts per frame", func(t *testing.T) {
		s := mustSynthetic(t, SyntheticConfig{Width: 8, Height: 8})
		f1, _ := s.TryCapture(ctx, time.Second)
		f2, _ := s.TryCapture(ctx, time.Second)
		if f1.Data[0] != 1 || f2.Data[0] != 2 {
			t.Errorf("origin pixel = %d then %d, want 1 then 2", f1.Data[0], f2.Data[0])
		}
		// (x+y)+seq at x=3, y=2 in frame 1
		if got := f1.Data[(2*8+3)*3]; got != 6 {
			t.Errorf("pixel (3,2) = %d, want 6", got)
		}
	})
}

// TestSynthetic_Determinism validates that two sources with the same
// configuration produce identical pixels.
func TestSynthetic_Determinism(t *testing.T) {
	cfg := SyntheticConfig{Width: 20, Height: 10, Pattern: PatternGradient}
	a := mustSynthetic(t, cfg)
	b := mustSynthetic(t, cfg)

	for i := 0; i < 5; i++ {
		fa, _ := a.TryCapture(context.Background(), time.Second)
		fb, _ := b.TryCapture(context.Background(), time.Second)
		if diff := cmp.Diff(fa.Data, fb.Data); diff != "" {
			t.Fatalf("frame %d differs (-a +b):\n%s", i+1, diff)
		}
		if fa.TraceID == fb.TraceID {
			t.Errorf("frame %d: trace ids should be unique", i+1)
		}
	}
}

// TestSynthetic_Lifecycle validates metadata, the frame limit and Close.
func TestSynthetic_Lifecycle(t *testing.T) {
	s := mustSynthetic(t, SyntheticConfig{Width: 4, Height: 4, Frames: 3, Name: "cam-test"})
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		f, err := s.TryCapture(ctx, time.Second)
		if err != nil {
			t.Fatalf("frame %d: %v", want, err)
		}
		if f.Seq != want || f.Source != "cam-test" || f.Channels != frame.BytesPerPixel || f.TraceID == "" {
			t.Errorf("frame %d metadata = %+v", want, f)
		}
	}

	if _, err := s.TryCapture(ctx, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Errorf("TryCapture() past limit = %v, want ErrUnavailable", err)
	}

	stats := s.Stats()
	if stats.FrameCount != 3 || stats.Source != "cam-test" || stats.Resolution != "4x4" {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.TryCapture(ctx, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Errorf("TryCapture() after Close = %v, want ErrUnavailable", err)
	}
	if s.Stats().IsConnected {
		t.Error("IsConnected = true after Close")
	}
}

// TestSynthetic_Pacing validates that a slot beyond the timeout yields
// ErrTimedOut and that the slot is still delivered on a later call.
func TestSynthetic_Pacing(t *testing.T) {
	s := mustSynthetic(t, SyntheticConfig{Width: 2, Height: 2, FPS: 5}) // 200ms interval
	ctx := context.Background()

	if _, err := s.TryCapture(ctx, time.Second); err != nil {
		t.Fatalf("first frame: %v", err)
	}

	start := time.Now()
	_, err := s.TryCapture(ctx, 20*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("TryCapture(20ms) = %v, want ErrTimedOut", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("timed out after %v, want about 20ms", elapsed)
	}
	if s.Stats().Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", s.Stats().Timeouts)
	}

	f, err := s.TryCapture(ctx, time.Second)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if f.Seq != 2 {
		t.Errorf("Seq = %d, want 2", f.Seq)
	}
}

func TestSynthetic_ContextCancelled(t *testing.T) {
	s := mustSynthetic(t, SyntheticConfig{Width: 2, Height: 2, FPS: 1})
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := s.TryCapture(ctx, time.Second); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := s.TryCapture(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("TryCapture() = %v, want context.Canceled", err)
	}
}

func TestNewSynthetic_Invalid(t *testing.T) {
	invalid := []SyntheticConfig{
		{Width: 0, Height: 4},
		{Width: 4, Height: -1},
		{Width: 4, Height: 4, FPS: -1},
		{Width: 4, Height: 4, Channels: -3},
	}
	for _, cfg := range invalid {
		if _, err := NewSynthetic(cfg); err == nil {
			t.Errorf("NewSynthetic(%+v) succeeded, want error", cfg)
		}
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in      string
		want    Pattern
		wantErr bool
	}{
		{"", PatternGradient, false},
		{"gradient", PatternGradient, false},
		{"constant", PatternConstant, false},
		{"checkerboard", PatternCheckerboard, false},
		{"plasma", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePattern(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePattern(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func writeRecording(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.ffrec")

	w, err := recording.Create(path, "camera-7")
	if err != nil {
		t.Fatal(err)
	}
	src := mustSynthetic(t, SyntheticConfig{Width: 6, Height: 4, Name: "camera-7"})
	for i := 0; i < n; i++ {
		f, err := src.TryCapture(context.Background(), time.Second)
		if err != nil {
			t.Fatal(err)
		}
		f.Seq += 100
		if err := w.Write(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestReplay validates that a recording is served in order, renumbered from
// 1, and that the end of the recording is terminal.
func TestReplay(t *testing.T) {
	path := writeRecording(t, 4)

	r, err := NewReplay(ReplayConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx := context.Background()
	for want := uint64(1); want <= 4; want++ {
		f, err := r.TryCapture(ctx, time.Second)
		if err != nil {
			t.Fatalf("frame %d: %v", want, err)
		}
		if f.Seq != want {
			t.Errorf("Seq = %d, want %d", f.Seq, want)
		}
		// The gradient value at the origin is the original capture seq.
		if f.Data[0] != byte(want) {
			t.Errorf("frame %d origin pixel = %d, want %d", want, f.Data[0], want)
		}
		if f.Source != "camera-7" || f.Resolution() != "6x4" {
			t.Errorf("frame %d metadata = %s %s", want, f.Source, f.Resolution())
		}
	}

	if _, err := r.TryCapture(ctx, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Errorf("TryCapture() at end = %v, want ErrUnavailable", err)
	}
	if _, err := r.TryCapture(ctx, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Errorf("TryCapture() after end = %v, want ErrUnavailable", err)
	}

	stats := r.Stats()
	if stats.FrameCount != 4 || stats.IsConnected || stats.Resolution != "6x4" || stats.Source != "replay:camera-7" {
		t.Errorf("Stats() = %+v", stats)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() after end = %v", err)
	}
}

func TestReplay_FrameLimit(t *testing.T) {
	r, err := NewReplay(ReplayConfig{Path: writeRecording(t, 5), Frames: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for i := 0; i < 2; i++ {
		if _, err := r.TryCapture(context.Background(), time.Second); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := r.TryCapture(context.Background(), time.Second); !errors.Is(err, ErrUnavailable) {
		t.Errorf("TryCapture() past limit = %v, want ErrUnavailable", err)
	}
}

func TestNewReplay_Invalid(t *testing.T) {
	if _, err := NewReplay(ReplayConfig{}); err == nil {
		t.Error("NewReplay() without path succeeded")
	}
	if _, err := NewReplay(ReplayConfig{Path: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("NewReplay() of a missing file succeeded")
	}
}

// TestWarmup validates FPS measurement against a paced synthetic source.
func TestWarmup(t *testing.T) {
	s := mustSynthetic(t, SyntheticConfig{Width: 4, Height: 4, FPS: 50})

	stats, err := Warmup(context.Background(), s, 400*time.Millisecond)
	if err != nil {
		t.Fatalf("Warmup() failed: %v", err)
	}

	t.Logf("warm-up: frames=%d fps_mean=%.1f range=%.1f-%.1f stable=%v",
		stats.FramesReceived, stats.FPSMean, stats.FPSMin, stats.FPSMax, stats.IsStable)

	if stats.FramesReceived < 10 || stats.FramesReceived > 25 {
		t.Errorf("FramesReceived = %d, want about 20", stats.FramesReceived)
	}
	if stats.FPSMean < 25 || stats.FPSMean > 60 {
		t.Errorf("FPSMean = %.1f, want about 50", stats.FPSMean)
	}
}

func TestWarmup_Failures(t *testing.T) {
	t.Run("source ends", func(t *testing.T) {
		s := mustSynthetic(t, SyntheticConfig{Width: 4, Height: 4, Frames: 1})
		if _, err := Warmup(context.Background(), s, time.Second); !errors.Is(err, ErrUnavailable) {
			t.Errorf("Warmup() = %v, want ErrUnavailable", err)
		}
	})

	t.Run("too slow", func(t *testing.T) {
		s := mustSynthetic(t, SyntheticConfig{Width: 4, Height: 4, FPS: 2})
		if _, err := Warmup(context.Background(), s, 100*time.Millisecond); err == nil {
			t.Error("Warmup() with a single frame succeeded")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := mustSynthetic(t, SyntheticConfig{Width: 4, Height: 4, FPS: 10})
		if _, err := Warmup(ctx, s, time.Second); !errors.Is(err, context.Canceled) {
			t.Errorf("Warmup() = %v, want context.Canceled", err)
		}
	})
}

func TestRealFPS(t *testing.T) {
	if got := RealFPS(0, time.Now()); got != 0 {
		t.Errorf("RealFPS(0) = %v", got)
	}
	if got := RealFPS(10, time.Time{}); got != 0 {
		t.Errorf("RealFPS(zero start) = %v", got)
	}
	got := RealFPS(10, time.Now().Add(-2*time.Second))
	if got < 4 || got > 5.1 {
		t.Errorf("RealFPS(10, 2s) = %v, want about 5", got)
	}
}

// TestMailbox validates latest-wins replacement and the Take outcomes.
func TestMailbox(t *testing.T) {
	m := NewMailbox()
	ctx := context.Background()

	if old := m.Put(&frame.Raw{Seq: 1}); old != nil {
		t.Errorf("Put() into empty mailbox replaced seq %d", old.Seq)
	}
	if old := m.Put(&frame.Raw{Seq: 2}); old == nil || old.Seq != 1 {
		t.Errorf("Put() replaced %v, want seq 1", old)
	}

	f, err := m.Take(ctx, time.Second, nil)
	if err != nil || f.Seq != 2 {
		t.Fatalf("Take() = %v, %v; want seq 2", f, err)
	}

	if _, err := m.Take(ctx, 10*time.Millisecond, nil); !errors.Is(err, ErrTimedOut) {
		t.Errorf("Take() on empty mailbox = %v, want ErrTimedOut", err)
	}

	done := make(chan struct{})
	close(done)
	m.Put(&frame.Raw{Seq: 3})
	if f, err := m.Take(ctx, time.Second, done); err != nil || f.Seq != 3 {
		t.Errorf("Take() after done with a pending frame = %v, %v; want seq 3", f, err)
	}
	if _, err := m.Take(ctx, time.Second, done); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Take() after done = %v, want ErrUnavailable", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.Take(cancelled, time.Second, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Take() with cancelled ctx = %v, want context.Canceled", err)
	}
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/recording"
)

// ReplayConfig configures a Replay source.
type ReplayConfig struct {
	// Path is the recording file written by display.Recorder.
	Path string
	// FPS paces delivery. 0 delivers frames as fast as they are requested.
	FPS float64
	// Frames stops the replay after this many frames. 0 replays everything.
	Frames uint64
}

// Replay serves the frames of a recording in order, then reports
// ErrUnavailable.
//
// Replayed frames are renumbered from 1 and re-stamped with the replay time;
// the recorded trace id and source are kept.
type Replay struct {
	cfg    ReplayConfig
	source string

	mu     sync.Mutex
	reader *recording.Reader
	pacer  pacer
	seq    uint64

	done      atomic.Bool
	emitted   atomic.Uint64
	timeouts  atomic.Uint64
	startTime atomic.Int64
	lastRes   atomic.Value // string
}

// NewReplay opens the recording at cfg.Path.
func NewReplay(cfg ReplayConfig) (*Replay, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("capture: replay path is required")
	}
	if cfg.FPS < 0 {
		return nil, fmt.Errorf("capture: replay fps must not be negative, got %v", cfg.FPS)
	}

	r, err := recording.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("capture: open replay: %w", err)
	}

	hdr := r.Header()
	slog.Info("capture: replay source ready",
		"path", cfg.Path,
		"recorded_source", hdr.Source,
		"created", hdr.Created,
		"fps", cfg.FPS,
	)

	rp := &Replay{
		cfg:    cfg,
		source: "replay:" + hdr.Source,
		reader: r,
		pacer:  newPacer(cfg.FPS),
	}
	rp.lastRes.Store("")
	return rp, nil
}

// TryCapture returns the next recorded frame.
func (r *Replay) TryCapture(ctx context.Context, timeout time.Duration) (*frame.Raw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done.Load() {
		return nil, ErrUnavailable
	}
	if r.cfg.Frames > 0 && r.seq >= r.cfg.Frames {
		r.finish()
		return nil, fmt.Errorf("%w: replay frame limit %d reached", ErrUnavailable, r.cfg.Frames)
	}

	if err := r.pacer.wait(ctx, timeout); err != nil {
		if errors.Is(err, ErrTimedOut) {
			r.timeouts.Add(1)
		}
		return nil, err
	}

	f, err := r.reader.Next()
	if err != nil {
		r.finish()
		if errors.Is(err, io.EOF) {
			slog.Info("capture: replay finished", "frames", r.seq)
			return nil, fmt.Errorf("%w: end of recording", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.seq++
	f.Seq = r.seq
	f.Timestamp = time.Now()
	if f.Source == "" {
		f.Source = r.source
	}
	r.lastRes.Store(f.Resolution())

	if r.emitted.Add(1) == 1 {
		r.startTime.Store(time.Now().UnixNano())
	}
	return f, nil
}

// Stats returns source statistics.
func (r *Replay) Stats() Stats {
	var start time.Time
	if ns := r.startTime.Load(); ns != 0 {
		start = time.Unix(0, ns)
	}
	emitted := r.emitted.Load()

	return Stats{
		FrameCount:  emitted,
		Timeouts:    r.timeouts.Load(),
		FPSTarget:   r.cfg.FPS,
		FPSReal:     RealFPS(emitted, start),
		Source:      r.source,
		Resolution:  r.lastRes.Load().(string),
		IsConnected: !r.done.Load(),
	}
}

// Close releases the recording file.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finish()
}

// finish closes the reader once.
func (r *Replay) finish() error {
	if !r.done.CompareAndSwap(false, true) {
		return nil
	}
	return r.reader.Close()
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

// Pattern selects the content of synthetic frames.
type Pattern int

const (
	// PatternGradient draws a diagonal gradient that shifts by one step per frame.
	PatternGradient Pattern = iota
	// PatternConstant fills every byte with SyntheticConfig.Value.
	PatternConstant
	// PatternCheckerboard draws 8x8 black and white squares.
	PatternCheckerboard
)

// ParsePattern maps a configuration name to a Pattern.
func ParsePattern(s string) (Pattern, error) {
	switch s {
	case "", "gradient":
		return PatternGradient, nil
	case "constant":
		return PatternConstant, nil
	case "checkerboard":
		return PatternCheckerboard, nil
	default:
		return 0, fmt.Errorf("capture: unknown pattern %q (want gradient, constant or checkerboard)", s)
	}
}

// SyntheticConfig configures a Synthetic source.
type SyntheticConfig struct {
	Width  int
	Height int
	// FPS paces delivery. 0 delivers frames as fast as they are requested.
	FPS     float64
	Pattern Pattern
	// Value is the fill byte for PatternConstant.
	Value byte
	// Frames limits the number of frames; the source then reports
	// ErrUnavailable. 0 means unlimited.
	Frames uint64
	// Channels defaults to 3. Other values produce frames the pixel format
	// bridge rejects.
	Channels int
	// Name identifies the source in frame metadata (default "synthetic").
	Name string
}

// Synthetic generates deterministic frames without any device.
//
// Frame n (Seq starting at 1) always has the same content for a given
// configuration, so pipelines fed by a Synthetic source are reproducible.
type Synthetic struct {
	cfg SyntheticConfig

	mu    sync.Mutex
	seq   uint64
	pacer pacer

	closed    atomic.Bool
	emitted   atomic.Uint64
	timeouts  atomic.Uint64
	startTime atomic.Int64
}

// NewSynthetic validates cfg and returns a synthetic source.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("capture: synthetic size must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < 0 {
		return nil, fmt.Errorf("capture: synthetic fps must not be negative, got %v", cfg.FPS)
	}
	if cfg.Channels == 0 {
		cfg.Channels = frame.BytesPerPixel
	}
	if cfg.Channels < 0 {
		return nil, fmt.Errorf("capture: synthetic channels must be positive, got %d", cfg.Channels)
	}
	if cfg.Name == "" {
		cfg.Name = "synthetic"
	}

	s := &Synthetic{cfg: cfg, pacer: newPacer(cfg.FPS)}

	slog.Info("capture: synthetic source ready",
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.FPS,
		"frames", cfg.Frames,
		"source", cfg.Name,
	)

	return s, nil
}

// TryCapture returns the next frame, waiting for its pacing slot when FPS is
// set. It returns ErrTimedOut if the slot is further away than timeout and
// ErrUnavailable once the frame limit is reached or the source is closed.
func (s *Synthetic) TryCapture(ctx context.Context, timeout time.Duration) (*frame.Raw, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Frames > 0 && s.seq >= s.cfg.Frames {
		return nil, fmt.Errorf("%w: synthetic frame limit %d reached", ErrUnavailable, s.cfg.Frames)
	}

	if err := s.pacer.wait(ctx, timeout); err != nil {
		if errors.Is(err, ErrTimedOut) {
			s.timeouts.Add(1)
		}
		return nil, err
	}

	s.seq++
	f := s.render(s.seq)

	if s.emitted.Add(1) == 1 {
		s.startTime.Store(time.Now().UnixNano())
	}

	return f, nil
}

// Stats returns source statistics.
func (s *Synthetic) Stats() Stats {
	var start time.Time
	if ns := s.startTime.Load(); ns != 0 {
		start = time.Unix(0, ns)
	}
	emitted := s.emitted.Load()

	return Stats{
		FrameCount:  emitted,
		Timeouts:    s.timeouts.Load(),
		FPSTarget:   s.cfg.FPS,
		FPSReal:     RealFPS(emitted, start),
		Source:      s.cfg.Name,
		Resolution:  fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		IsConnected: !s.closed.Load(),
	}
}

// Close makes every later TryCapture return ErrUnavailable.
func (s *Synthetic) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Synthetic) render(seq uint64) *frame.Raw {
	w, h, ch := s.cfg.Width, s.cfg.Height, s.cfg.Channels
	data := make([]byte, w*h*ch)

	switch s.cfg.Pattern {
	case PatternConstant:
		for i := range data {
			data[i] = s.cfg.Value
		}
	case PatternCheckerboard:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var v byte
				if (x/8+y/8)%2 == 0 {
					v = 255
				}
				px := data[(y*w+x)*ch : (y*w+x+1)*ch]
				for c := range px {
					px[c] = v
				}
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := byte(uint64(x+y) + seq)
				px := data[(y*w+x)*ch : (y*w+x+1)*ch]
				for c := range px {
					px[c] = v
				}
			}
		}
	}

	return &frame.Raw{
		Seq:       seq,
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
		Source:    s.cfg.Name,
		Width:     w,
		Height:    h,
		Channels:  ch,
		Data:      data,
	}
}

// Package camera captures frames from a local video device through OpenCV.
//
// A reader goroutine owns the gocv.VideoCapture and keeps only the latest
// frame. When the device stops delivering it is closed and reopened with
// exponential backoff; once the retry budget is spent the source reports
// capture.ErrUnavailable.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/backoff"
)

// ErrReadFailed reports that the device returned no frame.
var ErrReadFailed = errors.New("camera: read failed")

// Config configures a camera source.
type Config struct {
	// Device is the OpenCV device index (0 = first camera) or a file/URL.
	Device any
	// Width and Height request a capture size; 0 keeps the device default.
	// Frames of another size are resized to match.
	Width  int
	Height int
	// FPS requests a device frame rate (0 = device default).
	FPS float64
	// Name identifies the source in frame metadata (default "camera-<device>").
	Name string
	// Reconnect controls reopen attempts after read failures.
	Reconnect backoff.Config
	// MaxReadFailures is the number of consecutive empty reads that trigger
	// a reopen (default 10).
	MaxReadFailures int
}

// Validate fills defaults and checks cfg.
func (c *Config) Validate() error {
	if c.Device == nil {
		c.Device = 0
	}
	if c.Width < 0 || c.Height < 0 || (c.Width == 0) != (c.Height == 0) {
		return fmt.Errorf("camera: invalid frame size %dx%d", c.Width, c.Height)
	}
	if c.FPS < 0 {
		return fmt.Errorf("camera: fps must not be negative, got %v", c.FPS)
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("camera-%v", c.Device)
	}
	if c.Reconnect == (backoff.Config{}) {
		c.Reconnect = backoff.DefaultConfig()
	}
	if c.MaxReadFailures <= 0 {
		c.MaxReadFailures = 10
	}
	return nil
}

// Source is a capture.Provider backed by an OpenCV VideoCapture.
type Source struct {
	cfg Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	// vc is owned by the reader goroutine after Open returns.
	vc *gocv.VideoCapture

	frames *capture.Mailbox
	state  backoff.State

	seq        atomic.Uint64
	emitted    atomic.Uint64
	replaced   atomic.Uint64
	timeouts   atomic.Uint64
	readErrors atomic.Uint64
	connected  atomic.Bool
	closed     atomic.Bool
	startTime  atomic.Int64
	resolution atomic.Value // string
}

var _ capture.Provider = (*Source)(nil)

// Open opens the device and starts the reader goroutine.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Source{
		cfg:    cfg,
		done:   make(chan struct{}),
		frames: capture.NewMailbox(),
	}
	s.resolution.Store(fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))

	if err := s.open(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(runCtx)

	slog.Info("camera: source started",
		"device", cfg.Device,
		"resolution", s.resolution.Load(),
		"target_fps", cfg.FPS,
	)
	return s, nil
}

func (s *Source) open() error {
	vc, err := gocv.OpenVideoCapture(s.cfg.Device)
	if err != nil {
		return fmt.Errorf("camera: open device %v: %w", s.cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("camera: device %v did not open", s.cfg.Device)
	}

	if s.cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))
	}
	if s.cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, s.cfg.FPS)
	}

	s.vc = vc
	s.connected.Store(true)
	return nil
}

func (s *Source) release() {
	s.connected.Store(false)
	if s.vc == nil {
		return
	}
	if err := s.vc.Close(); err != nil {
		slog.Error("camera: failed to close device", "error", err)
	}
	s.vc = nil
}

// run reads frames until ctx is done or the device cannot be reopened.
func (s *Source) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.done)
	defer s.release()

	first := true
	err := backoff.Run(ctx, "camera", func(ctx context.Context) error {
		if !first {
			s.release()
			if err := s.open(); err != nil {
				return err
			}
			slog.Info("camera: device reopened", "reconnects", s.state.Reconnects())
		}
		first = false
		return s.readLoop(ctx)
	}, s.cfg.Reconnect, &s.state)

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("camera: source stopped after reconnection failure",
			"error", err,
			"frames_captured", s.emitted.Load(),
			"reconnects", s.state.Reconnects(),
		)
	}
}

// readLoop returns nil when ctx is done and ErrReadFailed after
// MaxReadFailures consecutive empty reads.
func (s *Source) readLoop(ctx context.Context) error {
	img := gocv.NewMat()
	defer img.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	failures := 0
	for ctx.Err() == nil {
		if ok := s.vc.Read(&img); !ok || img.Empty() {
			failures++
			s.readErrors.Add(1)
			if failures >= s.cfg.MaxReadFailures {
				return fmt.Errorf("%w: %d consecutive empty reads", ErrReadFailed, failures)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0
		s.state.Reset()

		src := img
		if s.cfg.Width > 0 && (img.Cols() != s.cfg.Width || img.Rows() != s.cfg.Height) {
			gocv.Resize(img, &resized, image.Pt(s.cfg.Width, s.cfg.Height), 0, 0, gocv.InterpolationLinear)
			src = resized
		}

		f := &frame.Raw{
			Seq:       s.seq.Add(1),
			Timestamp: time.Now(),
			TraceID:   uuid.New().String(),
			Source:    s.cfg.Name,
			Width:     src.Cols(),
			Height:    src.Rows(),
			Channels:  src.Channels(),
			// ToBytes copies out of the Mat, which is reused for the next read.
			Data: src.ToBytes(),
		}
		s.resolution.Store(f.Resolution())

		if old := s.frames.Put(f); old != nil {
			s.replaced.Add(1)
			slog.Debug("camera: replacing unread frame", "seq", old.Seq, "trace_id", old.TraceID)
		}
	}
	return nil
}

// TryCapture waits up to timeout for the next frame.
func (s *Source) TryCapture(ctx context.Context, timeout time.Duration) (*frame.Raw, error) {
	if s.closed.Load() {
		return nil, capture.ErrUnavailable
	}

	f, err := s.frames.Take(ctx, timeout, s.done)
	switch {
	case err == nil:
		if s.emitted.Add(1) == 1 {
			s.startTime.Store(time.Now().UnixNano())
		}
		return f, nil
	case errors.Is(err, capture.ErrTimedOut):
		s.timeouts.Add(1)
		return nil, err
	case errors.Is(err, capture.ErrUnavailable):
		return nil, fmt.Errorf("%w: camera %v gave up after %d reconnects",
			err, s.cfg.Device, s.state.Reconnects())
	default:
		return nil, err
	}
}

// Stats returns source statistics.
func (s *Source) Stats() capture.Stats {
	var start time.Time
	if ns := s.startTime.Load(); ns != 0 {
		start = time.Unix(0, ns)
	}
	emitted := s.emitted.Load()

	return capture.Stats{
		FrameCount:  emitted,
		Timeouts:    s.timeouts.Load(),
		FPSTarget:   s.cfg.FPS,
		FPSReal:     capture.RealFPS(emitted, start),
		Source:      s.cfg.Name,
		Resolution:  s.resolution.Load().(string),
		Reconnects:  s.state.Reconnects(),
		Errors:      s.readErrors.Load(),
		IsConnected: s.connected.Load(),
	}
}

// Close stops the reader and releases the device. Idempotent.
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	slog.Info("camera: stopping source")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("camera: stop timeout exceeded, reader may still be blocked on the device")
	}

	slog.Info("camera: source stopped",
		"frames_captured", s.emitted.Load(),
		"frames_replaced", s.replaced.Load(),
		"reconnects", s.state.Reconnects(),
	)
	return nil
}

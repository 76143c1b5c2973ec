// Package gstreamer captures frames from any GStreamer source element.
//
// The configured launch fragment (for example "v4l2src device=/dev/video0" or
// "rtspsrc location=rtsp://cam/stream ! decodebin") is completed with
// conversion, scaling, rate limiting and an appsink that delivers BGR frames:
//
//	<launch> ! videoconvert ! videoscale ! videorate ! video/x-raw,format=BGR ! appsink
//
// The appsink keeps only the latest frame. A bus monitor classifies errors,
// and on EOS or error the pipeline is torn down and rebuilt with exponential
// backoff. Once the retry budget is spent the source reports
// capture.ErrUnavailable.
package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/backoff"
)

// Config configures a GStreamer source.
type Config struct {
	// Launch is the gst-launch description of the source part of the pipeline.
	Launch string
	// Width and Height are the delivered frame size; frames are scaled to it.
	Width  int
	Height int
	// FPS limits the delivered rate (0 = source rate).
	FPS float64
	// Name identifies the source in frame metadata (default "gstreamer").
	Name string
	// Reconnect controls rebuild attempts after EOS or bus errors.
	Reconnect backoff.Config
}

// Validate fills defaults and checks cfg.
func (c *Config) Validate() error {
	if c.Launch == "" {
		return fmt.Errorf("gstreamer: launch description is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("gstreamer: frame size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FPS < 0 {
		return fmt.Errorf("gstreamer: fps must not be negative, got %v", c.FPS)
	}
	if c.Name == "" {
		c.Name = "gstreamer"
	}
	if c.Reconnect == (backoff.Config{}) {
		c.Reconnect = backoff.DefaultConfig()
	}
	return nil
}

// Source is a capture.Provider backed by a GStreamer pipeline.
type Source struct {
	cfg    Config
	launch string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	mu       sync.Mutex
	pipeline *gst.Pipeline

	frames *capture.Mailbox
	state  backoff.State

	seq        atomic.Uint64
	emitted    atomic.Uint64
	dropped    atomic.Uint64
	timeouts   atomic.Uint64
	connected  atomic.Bool
	closed     atomic.Bool
	startTime  atomic.Int64
	errsByKind [ErrCategoryUnknown + 1]atomic.Uint64
}

var _ capture.Provider = (*Source)(nil)

// Open builds the pipeline, sets it to PLAYING and starts the bus monitor.
//
// A pipeline that cannot be built at all (bad launch syntax, missing
// elements) is reported immediately. Runtime failures go through the
// reconnect loop.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gst.Init(nil)

	s := &Source{
		cfg:    cfg,
		launch: launchString(cfg),
		done:   make(chan struct{}),
		frames: capture.NewMailbox(),
	}

	if err := s.connect(); err != nil {
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()

	slog.Info("gstreamer: source started",
		"pipeline", s.launch,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"target_fps", cfg.FPS,
	)

	return s, nil
}

// connect builds a fresh pipeline and starts it.
func (s *Source) connect() error {
	pipeline, err := gst.NewPipelineFromString(s.launch)
	if err != nil {
		return fmt.Errorf("gstreamer: failed to create pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstreamer: appsink not found: %w", err)
	}
	sink := app.SinkFromElement(elem)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstreamer: failed to start pipeline: %w", err)
	}

	s.mu.Lock()
	s.pipeline = pipeline
	s.mu.Unlock()
	s.connected.Store(true)
	return nil
}

// teardown stops and releases the current pipeline.
func (s *Source) teardown() {
	s.mu.Lock()
	pipeline := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()

	s.connected.Store(false)
	if pipeline == nil {
		return
	}
	if err := pipeline.SetState(gst.StateNull); err != nil {
		slog.Error("gstreamer: failed to set pipeline to NULL", "error", err)
	}
}

// run monitors the pipeline and rebuilds it after failures.
func (s *Source) run() {
	defer s.wg.Done()
	defer close(s.done)

	first := true
	err := backoff.Run(s.ctx, "gstreamer", func(ctx context.Context) error {
		if !first {
			if err := s.connect(); err != nil {
				return err
			}
			slog.Info("gstreamer: pipeline rebuilt", "reconnects", s.state.Reconnects())
		}
		first = false

		err := s.monitor(ctx)
		s.teardown()
		return err
	}, s.cfg.Reconnect, &s.state)

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("gstreamer: source stopped after reconnection failure",
			"error", err,
			"frames_captured", s.emitted.Load(),
			"reconnects", s.state.Reconnects(),
		)
	}
}

// monitor polls the bus until EOS, an error, or ctx is done.
//
// Returns nil only when ctx is cancelled.
func (s *Source) monitor(ctx context.Context) error {
	s.mu.Lock()
	pipeline := s.pipeline
	s.mu.Unlock()
	if pipeline == nil {
		return fmt.Errorf("gstreamer: pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()
	for {
		if ctx.Err() != nil {
			return nil
		}

		// Short poll keeps shutdown responsive.
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("gstreamer: end of stream received",
				"frames_captured", s.emitted.Load(),
			)
			return fmt.Errorf("gstreamer: end of stream")

		case gst.MessageError:
			gerr := msg.ParseError()
			category := Classify(gerr.Error(), gerr.DebugString())
			s.errsByKind[category].Add(1)

			slog.Error("gstreamer: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"frames_captured", s.emitted.Load(),
				"reconnects", s.state.Reconnects(),
			)
			return fmt.Errorf("gstreamer: pipeline error [%s]: %s", category, gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					s.state.Reset()
					slog.Debug("gstreamer: pipeline playing, reconnect state reset")
				}
			}
		}
	}
}

// onNewSample copies the sample into a frame and keeps it as the latest.
func (s *Source) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstreamer: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstreamer: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstreamer: empty buffer received")
		return gst.FlowOK
	}

	// GStreamer reuses the buffer.
	pix := make([]byte, len(data))
	copy(pix, data)
	buffer.Unmap()

	f := &frame.Raw{
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
		Source:    s.cfg.Name,
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Channels:  frame.BytesPerPixel,
		Data:      pix,
	}

	if old := s.frames.Put(f); old != nil {
		s.dropped.Add(1)
		slog.Debug("gstreamer: replacing unread frame", "seq", old.Seq, "trace_id", old.TraceID)
	}
	return gst.FlowOK
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
		return nil, fmt.Errorf("%w: gstreamer pipeline gave up after %d reconnects",
			err, s.state.Reconnects())
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

	var errs uint64
	for i := range s.errsByKind {
		errs += s.errsByKind[i].Load()
	}

	return capture.Stats{
		FrameCount:  emitted,
		Timeouts:    s.timeouts.Load(),
		FPSTarget:   s.cfg.FPS,
		FPSReal:     capture.RealFPS(emitted, start),
		Source:      s.cfg.Name,
		Resolution:  fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		Reconnects:  s.state.Reconnects(),
		Errors:      errs,
		IsConnected: s.connected.Load(),
	}
}

// ErrorCounts returns bus errors seen per category.
func (s *Source) ErrorCounts() map[ErrorCategory]uint64 {
	counts := make(map[ErrorCategory]uint64, len(s.errsByKind))
	for i := range s.errsByKind {
		counts[ErrorCategory(i)] = s.errsByKind[i].Load()
	}
	return counts
}

// Close stops the monitor and destroys the pipeline. Idempotent.
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	slog.Info("gstreamer: stopping source")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("gstreamer: stop timeout exceeded, monitor may still be running")
	}

	s.teardown()

	slog.Info("gstreamer: source stopped",
		"frames_captured", s.emitted.Load(),
		"frames_replaced", s.dropped.Load(),
		"reconnects", s.state.Reconnects(),
	)
	return nil
}

// launchString completes the source fragment with the BGR conversion tail.
func launchString(cfg Config) string {
	return fmt.Sprintf(
		"%s ! videoconvert ! videoscale ! videorate drop-only=true ! %s ! appsink name=sink sync=false max-buffers=1 drop=true",
		cfg.Launch, buildCaps(cfg.Width, cfg.Height, cfg.FPS),
	)
}

// buildCaps returns the BGR caps string for the appsink.
//
// Handles fractional framerates:
//   - fps >= 1.0: framerate = fps/1 (e.g., 5.0 → 5/1)
//   - fps < 1.0: framerate = 1/(1/fps) (e.g., 0.5 → 1/2)
//   - fps == 0: no framerate constraint
func buildCaps(width, height int, fps float64) string {
	caps := fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d", width, height)
	if fps <= 0 {
		return caps
	}

	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0/fps + 0.5)
	} else {
		numerator = int(fps + 0.5)
	}
	return fmt.Sprintf("%s,framerate=%d/%d", caps, numerator, denominator)
}

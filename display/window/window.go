// Package window shows filtered frames in an OpenCV window.
package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

// ErrWindowClosed is returned by Display once the user has closed the window.
var ErrWindowClosed = errors.New("window: closed by user")

// Sink renders frames with gocv.IMShow.
//
// OpenCV HighGUI calls must stay on one OS thread; the pipeline calls
// Display from its single consumer goroutine, and Sink serializes calls
// besides.
type Sink struct {
	title string

	mu     sync.Mutex
	win    *gocv.Window
	closed bool

	shown   atomic.Uint64
	skipped atomic.Uint64
}

// New opens a window titled title.
func New(title string) *Sink {
	if title == "" {
		title = "frame-filter"
	}
	slog.Info("window: opening display window", "title", title)
	return &Sink{title: title, win: gocv.NewWindow(title)}
}

// Display shows f and pumps the window event loop.
func (s *Sink) Display(ctx context.Context, f *frame.Raw) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.win.IsOpen() {
		s.skipped.Add(1)
		return ErrWindowClosed
	}

	if f.Channels != frame.BytesPerPixel {
		s.skipped.Add(1)
		return fmt.Errorf("window: frame %d has %d channels, want %d", f.Seq, f.Channels, frame.BytesPerPixel)
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		s.skipped.Add(1)
		return fmt.Errorf("window: frame %d: %w", f.Seq, err)
	}
	defer mat.Close()

	s.win.IMShow(mat)
	s.win.WaitKey(1)
	s.shown.Add(1)
	return nil
}

// Close destroys the window. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	slog.Info("window: display window closed",
		"title", s.title,
		"frames_shown", s.shown.Load(),
		"frames_skipped", s.skipped.Load(),
	)
	return s.win.Close()
}

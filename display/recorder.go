package display

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/recording"
)

// Recorder appends every frame to a recording file that capture.Replay can
// play back.
type Recorder struct {
	path string

	mu     sync.Mutex
	w      *recording.Writer
	closed bool
}

// NewRecorder creates (or truncates) the recording at path.
func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		return nil, fmt.Errorf("display: recorder path is required")
	}

	w, err := recording.Create(path, "frame-filter")
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}

	slog.Info("display: recorder sink ready", "path", path)
	return &Recorder{path: path, w: w}, nil
}

// Display appends f to the recording.
func (r *Recorder) Display(ctx context.Context, f *frame.Raw) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("display: recorder %s is closed", r.path)
	}
	return r.w.Write(f)
}

// Close flushes and closes the recording. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	slog.Info("display: recorder sink closed", "path", r.path, "frames", r.w.Count())
	return r.w.Close()
}

// Count returns the number of frames recorded.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Count()
}

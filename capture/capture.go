// Package capture provides frame sources for the filter pipeline.
//
// Every source delivers BGR frames through the same pull contract:
//
//	TryCapture(ctx, timeout) → frame | ErrTimedOut | ErrUnavailable
//
// ErrTimedOut is transient: the caller logs it and tries again.
// ErrUnavailable is terminal: the source will never deliver another frame.
//
// Sources in this package have no native dependencies. Hardware-backed
// sources live in capture/gstreamer (GStreamer) and capture/camera (OpenCV).
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

var (
	// ErrTimedOut reports that no frame arrived within the capture timeout.
	ErrTimedOut = errors.New("capture: timed out waiting for frame")
	// ErrUnavailable reports that the source is permanently gone.
	ErrUnavailable = errors.New("capture: source unavailable")
)

// Provider is the full contract of a frame source.
//
// Implementations must guarantee:
//   - TryCapture never blocks longer than timeout (plus scheduling noise)
//   - Close is idempotent; TryCapture returns ErrUnavailable after Close
//   - Stats is safe to call from any goroutine
type Provider interface {
	TryCapture(ctx context.Context, timeout time.Duration) (*frame.Raw, error)
	Stats() Stats
	Close() error
}

// Stats contains source statistics.
type Stats struct {
	// FrameCount is the total number of frames delivered
	FrameCount uint64
	// Timeouts is the number of TryCapture calls that returned ErrTimedOut
	Timeouts uint64
	// FPSTarget is the configured target FPS (0 = unpaced)
	FPSTarget float64
	// FPSReal is the measured delivery rate since the first frame
	FPSReal float64
	// Source identifies the source (e.g. "synthetic", "camera-0")
	Source string
	// Resolution is the frame resolution (e.g. "640x480")
	Resolution string
	// Reconnects is the number of reconnection attempts
	Reconnects uint32
	// Errors counts device, network or codec errors seen by the source
	Errors uint64
	// IsConnected indicates if the source can currently deliver frames
	IsConnected bool
}

// RealFPS returns frames per second since start, or 0 before any frame.
func RealFPS(frames uint64, start time.Time) float64 {
	if frames == 0 || start.IsZero() {
		return 0
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(frames) / elapsed
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/warmup"
)

// WarmupStats is re-exported from the internal warmup package.
type WarmupStats = warmup.Stats

// Capturer is the pull half of Provider.
type Capturer interface {
	TryCapture(ctx context.Context, timeout time.Duration) (*frame.Raw, error)
}

// CalculateFPSStats derives FPS and jitter statistics from frame arrival times.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *WarmupStats {
	return warmup.CalculateFPSStats(frameTimes, totalDuration)
}

// Warmup consumes frames from src for duration and measures how steadily
// they arrive. The frames are discarded.
//
// An unstable source is logged, not rejected: blur output stays correct at
// any frame rate. Returns an error if fewer than two frames arrived, the
// source became unavailable, or ctx was cancelled.
func Warmup(ctx context.Context, src Capturer, duration time.Duration) (*WarmupStats, error) {
	slog.Info("capture: starting source warm-up",
		"duration", duration,
		"reason", "measure real FPS before filtering",
	)

	warmupCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	start := time.Now()
	frameTimes := make([]time.Time, 0, 128)

	for {
		remaining := time.Until(start.Add(duration))
		if remaining <= 0 {
			break
		}

		f, err := src.TryCapture(warmupCtx, remaining)
		if err != nil {
			if errors.Is(err, ErrTimedOut) {
				continue
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("capture: warm-up cancelled: %w", ctx.Err())
			}
			if warmupCtx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("capture: warm-up: %w", err)
		}

		frameTimes = append(frameTimes, time.Now())
		slog.Debug("capture: warm-up frame received",
			"seq", f.Seq,
			"frames_collected", len(frameTimes),
		)
	}

	elapsed := time.Since(start)
	if len(frameTimes) < 2 {
		return nil, fmt.Errorf("capture: warm-up received %d frames in %v, need at least 2",
			len(frameTimes), elapsed)
	}

	stats := warmup.CalculateFPSStats(frameTimes, elapsed)

	slog.Info("capture: source warm-up complete",
		"frames", stats.FramesReceived,
		"duration", stats.Duration,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		"stable", stats.IsStable,
	)
	if !stats.IsStable {
		slog.Warn("capture: source frame rate is unstable",
			"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
			"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
			"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		)
	}

	return stats, nil
}

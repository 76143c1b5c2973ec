// Package warmup measures how steadily a source delivers frames before the
// pipeline starts.
package warmup

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a fraction of mean FPS.
	// Example: 30 FPS mean → stable if stddev < 4.5 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of expected interval.
	// Example: 30 FPS (33ms interval) → stable if jitter < 6.6ms
	jitterStabilityThreshold = 0.20
)

// Stats contains statistics collected during warm-up.
type Stats struct {
	FramesReceived int           // Number of frames received during warm-up
	Duration       time.Duration // Actual warm-up duration
	FPSMean        float64       // Frames per second over the whole window
	FPSStdDev      float64       // Standard deviation of instantaneous FPS
	FPSMin         float64       // Minimum instantaneous FPS
	FPSMax         float64       // Maximum instantaneous FPS
	IsStable       bool          // stddev < 15% of mean AND jitter < 20% of interval
	JitterMean     float64       // Mean deviation from the expected interval (seconds)
	JitterStdDev   float64       // Standard deviation of jitter (seconds)
	JitterMax      float64       // Maximum jitter observed (seconds)
}

// CalculateFPSStats derives FPS and jitter statistics from frame arrival times.
//
// This function:
//  1. Calculates mean FPS (frames / window)
//  2. Calculates instantaneous FPS for each frame interval
//  3. Finds min/max instantaneous FPS and their population stddev
//  4. Calculates jitter (|interval - expected interval|) statistics
//  5. Determines stability (stddev < 15% of mean AND jitter < 20%)
//
// Fewer than three frames, or a zero window, yield IsStable=false.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *Stats {
	n := len(frameTimes)
	stats := &Stats{FramesReceived: n, Duration: totalDuration}

	if n == 0 || totalDuration <= 0 {
		return stats
	}
	stats.FPSMean = float64(n) / totalDuration.Seconds()

	intervals := make([]float64, 0, n-1)
	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		intervals = append(intervals, interval)
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}

	if len(instantaneous) == 0 {
		return stats
	}

	stats.FPSMin = floats.Min(instantaneous)
	stats.FPSMax = floats.Max(instantaneous)
	stats.FPSStdDev = stat.PopStdDev(instantaneous, nil)

	expectedInterval := 1.0 / stats.FPSMean
	jitters := make([]float64, len(intervals))
	for i, interval := range intervals {
		jitters[i] = math.Abs(interval - expectedInterval)
	}
	stats.JitterMean, stats.JitterStdDev = stat.PopMeanStdDev(jitters, nil)
	stats.JitterMax = floats.Max(jitters)

	// A single interval is not enough data for a stability assessment
	if len(instantaneous) < 2 {
		return stats
	}

	fpsStable := stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold
	jitterStable := stats.JitterMean < expectedInterval*jitterStabilityThreshold
	stats.IsStable = fpsStable && jitterStable

	return stats
}

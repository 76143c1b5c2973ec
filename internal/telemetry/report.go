// Package telemetry publishes pipeline statistics: periodically to the log
// and to MQTT, and on demand over HTTP.
//
// Only counters leave the process. Frames are never published.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/pipeline"
)

// Report is the JSON shape of a statistics snapshot.
type Report struct {
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Running       bool      `json:"running"`

	Pipeline PipelineReport `json:"pipeline"`
	Source   SourceReport   `json:"source"`
}

// PipelineReport mirrors pipeline.Stats.
type PipelineReport struct {
	Captured        uint64    `json:"captured"`
	Timeouts        uint64    `json:"timeouts"`
	Rejected        uint64    `json:"rejected"`
	Enqueued        uint64    `json:"enqueued"`
	DroppedOldest   uint64    `json:"dropped_oldest"`
	Filtered        uint64    `json:"filtered"`
	Displayed       uint64    `json:"displayed"`
	DisplayErrors   uint64    `json:"display_errors"`
	QueueDepth      int       `json:"queue_depth"`
	QueueCapacity   int       `json:"queue_capacity"`
	AvgFilterMillis float64   `json:"avg_filter_ms"`
	LastFrameAt     time.Time `json:"last_frame_at,omitempty"`
}

// SourceReport mirrors capture.Stats.
type SourceReport struct {
	Name        string  `json:"name"`
	Resolution  string  `json:"resolution"`
	FrameCount  uint64  `json:"frame_count"`
	Timeouts    uint64  `json:"timeouts"`
	FPSTarget   float64 `json:"fps_target"`
	FPSReal     float64 `json:"fps_real"`
	Reconnects  uint32  `json:"reconnects"`
	Errors      uint64  `json:"errors"`
	IsConnected bool    `json:"is_connected"`
}

// NewReport combines pipeline and source statistics.
func NewReport(p pipeline.Stats, s capture.Stats) Report {
	r := Report{
		Timestamp: time.Now(),
		Running:   p.Running,
		Pipeline: PipelineReport{
			Captured:        p.Captured,
			Timeouts:        p.Timeouts,
			Rejected:        p.Rejected,
			Enqueued:        p.Enqueued,
			DroppedOldest:   p.DroppedOldest,
			Filtered:        p.Filtered,
			Displayed:       p.Displayed,
			DisplayErrors:   p.DisplayErrors,
			QueueDepth:      p.QueueDepth,
			QueueCapacity:   p.QueueCapacity,
			AvgFilterMillis: float64(p.AvgFilterLatency) / float64(time.Millisecond),
			LastFrameAt:     p.LastFrameAt,
		},
		Source: SourceReport{
			Name:        s.Source,
			Resolution:  s.Resolution,
			FrameCount:  s.FrameCount,
			Timeouts:    s.Timeouts,
			FPSTarget:   s.FPSTarget,
			FPSReal:     s.FPSReal,
			Reconnects:  s.Reconnects,
			Errors:      s.Errors,
			IsConnected: s.IsConnected,
		},
	}
	if !p.Started.IsZero() {
		r.UptimeSeconds = time.Since(p.Started).Seconds()
	}
	return r
}

// Collector produces the current report.
type Collector func() Report

// Reporter receives periodic reports.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// Run sends a report to every reporter each interval until ctx is done.
// Reporter errors are logged and do not stop the loop.
func Run(ctx context.Context, interval time.Duration, collect Collector, reporters ...Reporter) {
	if interval <= 0 || len(reporters) == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := collect()
			for _, rep := range reporters {
				if err := rep.Report(ctx, r); err != nil {
					slog.Warn("telemetry: report failed", "error", err)
				}
			}
		}
	}
}

// LogReporter writes each report as one structured log line.
type LogReporter struct {
	Logger *slog.Logger
}

// Report logs r at info level.
func (l LogReporter) Report(ctx context.Context, r Report) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("pipeline: stats",
		"uptime", time.Duration(r.UptimeSeconds*float64(time.Second)).Round(time.Second),
		"captured", r.Pipeline.Captured,
		"filtered", r.Pipeline.Filtered,
		"displayed", r.Pipeline.Displayed,
		"timeouts", r.Pipeline.Timeouts,
		"rejected", r.Pipeline.Rejected,
		"dropped_oldest", r.Pipeline.DroppedOldest,
		"display_errors", r.Pipeline.DisplayErrors,
		"queue_depth", r.Pipeline.QueueDepth,
		"avg_filter_ms", r.Pipeline.AvgFilterMillis,
		"source", r.Source.Name,
		"fps_real", r.Source.FPSReal,
		"reconnects", r.Source.Reconnects,
		"connected", r.Source.IsConnected,
	)
	return nil
}

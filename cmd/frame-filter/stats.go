package main

import (
	"fmt"
	"time"

	framefilter "github.com/e7canasta/orion-care-sensor/modules/frame-filter"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/config"
)

func printBanner(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          Frame Filter - Real-Time Gaussian Blur              ║")
	fmt.Printf("║                    Version %-30s ║\n", version)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")

	fmt.Printf("  Kernel:          %dx%d gaussian (sigma %.2f, edge %s)\n",
		cfg.Kernel.Size, cfg.Kernel.Size, cfg.Kernel.Sigma, cfg.Kernel.Edge)
	fmt.Printf("  Workers:         %s\n", workersLabel(cfg.Engine.Workers))
	fmt.Printf("  Source:          %s (%dx%d @ %.2f fps)\n",
		cfg.Source.Type, cfg.Source.Width, cfg.Source.Height, cfg.Source.FPS)
	fmt.Printf("  Sinks:           %v\n", cfg.Sink.Types())
	fmt.Printf("  Channel:         %d frames (%s)\n", cfg.Pipeline.Capacity, cfg.Pipeline.Overflow)
	fmt.Printf("  Stats Interval:  %v\n", cfg.Telemetry.StatsInterval)
	fmt.Println()
	fmt.Println("Pipeline:")
	fmt.Println("  source → producer → channel → consumer (blur) → sinks")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop gracefully")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}

func workersLabel(n int) string {
	if n == 0 {
		return "GOMAXPROCS"
	}
	return fmt.Sprintf("%d", n)
}

// printFinalStats prints the pipeline and source counters at shutdown.
func printFinalStats(uptime time.Duration, p framefilter.Stats, s capture.Stats) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      Final Statistics                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("  Runtime:            %v\n", uptime.Round(time.Millisecond))
	fmt.Println()

	fmt.Printf("Source (%s, %s):\n", s.Source, s.Resolution)
	fmt.Printf("  Frames Delivered:   %6d frames\n", s.FrameCount)
	fmt.Printf("  Target FPS:         %6.2f fps\n", s.FPSTarget)
	fmt.Printf("  Real FPS:           %6.2f fps\n", s.FPSReal)
	fmt.Printf("  Reconnects:         %6d\n", s.Reconnects)
	fmt.Printf("  Errors:             %6d\n", s.Errors)
	fmt.Println()

	fmt.Println("Pipeline:")
	fmt.Printf("  Captured:           %6d frames\n", p.Captured)
	fmt.Printf("  Capture Timeouts:   %6d\n", p.Timeouts)
	fmt.Printf("  Rejected:           %6d frames\n", p.Rejected)
	fmt.Printf("  Dropped (oldest):   %6d frames (%.1f%%)\n", p.DroppedOldest, percent(p.DroppedOldest, p.Enqueued))
	fmt.Printf("  Filtered:           %6d frames\n", p.Filtered)
	fmt.Printf("  Displayed:          %6d frames\n", p.Displayed)
	fmt.Printf("  Display Errors:     %6d\n", p.DisplayErrors)
	fmt.Printf("  Avg Filter Time:    %v\n", p.AvgFilterLatency.Round(time.Microsecond))
	fmt.Println()
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

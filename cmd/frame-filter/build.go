package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	framefilter "github.com/e7canasta/orion-care-sensor/modules/frame-filter"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture/camera"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture/gstreamer"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/convolve"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/display"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/display/window"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/backoff"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/kernel"
)

// pipelineConfig builds the kernel and engine. Invalid kernel parameters
// fail here, before any device is opened.
func pipelineConfig(cfg *config.Config, logger *slog.Logger) (framefilter.Config, error) {
	k, err := kernel.Gaussian(cfg.Kernel.Size, cfg.Kernel.Sigma)
	if err != nil {
		return framefilter.Config{}, err
	}

	edge, err := convolve.ParseEdgePolicy(cfg.Kernel.Edge)
	if err != nil {
		return framefilter.Config{}, err
	}

	overflow, err := framefilter.ParseOverflowPolicy(cfg.Pipeline.Overflow)
	if err != nil {
		return framefilter.Config{}, err
	}

	return framefilter.Config{
		Kernel:         k,
		Engine:         convolve.Engine{Edge: edge, Workers: cfg.Engine.Workers},
		Capacity:       cfg.Pipeline.Capacity,
		Overflow:       overflow,
		CaptureTimeout: cfg.Pipeline.CaptureTimeout,
		DisplayWidth:   cfg.Pipeline.DisplayWidth,
		DisplayHeight:  cfg.Pipeline.DisplayHeight,
		Logger:         logger,
	}, nil
}

// openSource creates the frame source selected by cfg.Type.
func openSource(ctx context.Context, cfg config.SourceConfig) (capture.Provider, error) {
	var (
		src capture.Provider
		err error
	)

	switch cfg.Type {
	case "synthetic":
		var pattern capture.Pattern
		if pattern, err = capture.ParsePattern(cfg.Pattern); err != nil {
			return nil, err
		}
		src, err = nilSafe(capture.NewSynthetic(capture.SyntheticConfig{
			Width:   cfg.Width,
			Height:  cfg.Height,
			FPS:     cfg.FPS,
			Pattern: pattern,
			Value:   byte(cfg.Value),
			Frames:  cfg.Frames,
			Name:    cfg.Name,
		}))

	case "replay":
		src, err = nilSafe(capture.NewReplay(capture.ReplayConfig{
			Path:   cfg.Path,
			FPS:    cfg.FPS,
			Frames: cfg.Frames,
		}))

	case "gstreamer":
		src, err = nilSafe(gstreamer.Open(ctx, gstreamer.Config{
			Launch:    cfg.Launch,
			Width:     cfg.Width,
			Height:    cfg.Height,
			FPS:       cfg.FPS,
			Name:      cfg.Name,
			Reconnect: reconnectConfig(cfg),
		}))

	case "camera":
		src, err = nilSafe(camera.Open(ctx, camera.Config{
			Device:    parseDevice(cfg.Device),
			Width:     cfg.Width,
			Height:    cfg.Height,
			FPS:       cfg.FPS,
			Name:      cfg.Name,
			Reconnect: reconnectConfig(cfg),
		}))

	default:
		err = fmt.Errorf("unknown source type %q", cfg.Type)
	}
	return src, err
}

// nilSafe keeps a failed constructor from yielding a non-nil interface
// holding a nil pointer.
func nilSafe[T capture.Provider](p T, err error) (capture.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

func reconnectConfig(cfg config.SourceConfig) backoff.Config {
	return backoff.Config{
		MaxRetries:    cfg.MaxReconnectAttempts,
		RetryDelay:    cfg.ReconnectInitialDelay,
		MaxRetryDelay: cfg.ReconnectMaxDelay,
	}
}

// parseDevice maps "0", "1", ... to a device index and keeps anything else
// (a path or URL) as is. The empty string selects device 0.
func parseDevice(s string) any {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

// buildSinks creates every sink listed in cfg.Type behind one Multi.
// Sinks created before a failure are closed.
func buildSinks(cfg config.SinkConfig, logger *slog.Logger) (*display.Multi, error) {
	var sinks []display.Sink

	fail := func(err error) (*display.Multi, error) {
		display.NewMulti(sinks...).Close()
		return nil, err
	}

	for _, t := range cfg.Types() {
		switch t {
		case "log":
			sinks = append(sinks, display.NewLog(logger))

		case "snapshot":
			s, err := display.NewSnapshot(display.SnapshotConfig{
				OutputDir:   cfg.OutputDir,
				Format:      cfg.Format,
				JPEGQuality: cfg.JPEGQuality,
				Every:       cfg.Every,
			})
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s)

		case "recorder":
			r, err := display.NewRecorder(cfg.Path)
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, r)

		case "window":
			sinks = append(sinks, window.New(cfg.Title))

		default:
			return fail(fmt.Errorf("unknown sink type %q", t))
		}
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no sink configured")
	}
	return display.NewMulti(sinks...), nil
}

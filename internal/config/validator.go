package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/convolve"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/pipeline"
)

// Defaults applied by Validate to zero-valued fields.
const (
	DefaultKernelSize    = 5
	DefaultSigma         = 1000.0
	DefaultSourceWidth   = 640
	DefaultSourceHeight  = 480
	DefaultSourceFPS     = 30.0
	DefaultStatsInterval = 5 * time.Second
	DefaultMQTTTopic     = "frame-filter/stats"
)

var (
	sourceTypes = map[string]bool{"synthetic": true, "replay": true, "gstreamer": true, "camera": true}
	sinkTypes   = map[string]bool{"log": true, "snapshot": true, "recorder": true, "window": true}
)

// Validate checks the configuration and fills defaults.
//
// Returns the first violation found.
func Validate(cfg *Config) error {
	// Kernel
	if cfg.Kernel.Size == 0 {
		cfg.Kernel.Size = DefaultKernelSize
	}
	if cfg.Kernel.Size < 1 || cfg.Kernel.Size%2 == 0 {
		return fmt.Errorf("kernel.size must be a positive odd number, got %d", cfg.Kernel.Size)
	}
	if cfg.Kernel.Sigma == 0 {
		cfg.Kernel.Sigma = DefaultSigma
	}
	if cfg.Kernel.Sigma < 0 {
		return fmt.Errorf("kernel.sigma must be > 0, got %v", cfg.Kernel.Sigma)
	}
	if cfg.Kernel.Edge == "" {
		cfg.Kernel.Edge = convolve.EdgeTruncate.String()
	}
	if _, err := convolve.ParseEdgePolicy(cfg.Kernel.Edge); err != nil {
		return fmt.Errorf("kernel.edge: %w", err)
	}

	// Engine
	if cfg.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be >= 0, got %d", cfg.Engine.Workers)
	}

	// Pipeline
	if cfg.Pipeline.Capacity == 0 {
		cfg.Pipeline.Capacity = pipeline.DefaultCapacity
	}
	if cfg.Pipeline.Capacity < 1 {
		return fmt.Errorf("pipeline.capacity must be >= 1, got %d", cfg.Pipeline.Capacity)
	}
	if cfg.Pipeline.Overflow == "" {
		cfg.Pipeline.Overflow = pipeline.OverflowBlock.String()
	}
	if _, err := pipeline.ParseOverflowPolicy(cfg.Pipeline.Overflow); err != nil {
		return fmt.Errorf("pipeline.overflow: %w", err)
	}
	if cfg.Pipeline.CaptureTimeout == 0 {
		cfg.Pipeline.CaptureTimeout = pipeline.DefaultCaptureTimeout
	}
	if cfg.Pipeline.CaptureTimeout < 0 {
		return fmt.Errorf("pipeline.capture_timeout must be > 0, got %v", cfg.Pipeline.CaptureTimeout)
	}
	if cfg.Pipeline.DisplayWidth < 0 || cfg.Pipeline.DisplayHeight < 0 {
		return fmt.Errorf("pipeline display size must be >= 0, got %dx%d",
			cfg.Pipeline.DisplayWidth, cfg.Pipeline.DisplayHeight)
	}

	if err := validateSource(&cfg.Source); err != nil {
		return err
	}
	if err := validateSink(&cfg.Sink); err != nil {
		return err
	}

	// Telemetry
	if cfg.Telemetry.StatsInterval == 0 {
		cfg.Telemetry.StatsInterval = DefaultStatsInterval
	}
	if cfg.Telemetry.StatsInterval < 0 {
		return fmt.Errorf("telemetry.stats_interval must be >= 0, got %v", cfg.Telemetry.StatsInterval)
	}
	if cfg.Telemetry.MQTT.Broker != "" {
		if cfg.Telemetry.MQTT.Topic == "" {
			cfg.Telemetry.MQTT.Topic = DefaultMQTTTopic
		}
		if cfg.Telemetry.MQTT.ClientID == "" {
			cfg.Telemetry.MQTT.ClientID = "frame-filter"
		}
		if cfg.Telemetry.MQTT.QoS > 2 {
			return fmt.Errorf("telemetry.mqtt.qos must be 0, 1 or 2, got %d", cfg.Telemetry.MQTT.QoS)
		}
		if cfg.Telemetry.MQTT.ControlTopic != "" && cfg.Telemetry.MQTT.ControlTopic == cfg.Telemetry.MQTT.Topic {
			return fmt.Errorf("telemetry.mqtt.control_topic must differ from the stats topic %q", cfg.Telemetry.MQTT.Topic)
		}
	}

	if cfg.Warmup.Duration < 0 {
		return fmt.Errorf("warmup.duration must be >= 0, got %v", cfg.Warmup.Duration)
	}

	return nil
}

func validateSource(src *SourceConfig) error {
	if src.Type == "" {
		src.Type = "synthetic"
	}
	if !sourceTypes[src.Type] {
		return fmt.Errorf("source.type %q is not one of synthetic, replay, gstreamer, camera", src.Type)
	}

	if src.Type != "replay" {
		if src.Width == 0 && src.Height == 0 {
			src.Width, src.Height = DefaultSourceWidth, DefaultSourceHeight
		}
		if src.Width <= 0 || src.Height <= 0 {
			return fmt.Errorf("source size must be positive, got %dx%d", src.Width, src.Height)
		}
	}
	if src.FPS < 0 {
		return fmt.Errorf("source.fps must be >= 0, got %v", src.FPS)
	}

	switch src.Type {
	case "synthetic":
		if src.FPS == 0 {
			src.FPS = DefaultSourceFPS
		}
		if _, err := capture.ParsePattern(src.Pattern); err != nil {
			return fmt.Errorf("source.pattern: %w", err)
		}
		if src.Value < 0 || src.Value > 255 {
			return fmt.Errorf("source.value must be 0-255, got %d", src.Value)
		}
	case "replay":
		if src.Path == "" {
			return fmt.Errorf("source.path is required for replay sources")
		}
	case "gstreamer":
		if src.Launch == "" {
			return fmt.Errorf("source.launch is required for gstreamer sources")
		}
	case "camera":
		if src.Device == "" {
			src.Device = "0"
		}
	}

	if src.MaxReconnectAttempts == 0 {
		src.MaxReconnectAttempts = 5
	}
	if src.ReconnectInitialDelay == 0 {
		src.ReconnectInitialDelay = time.Second
	}
	if src.ReconnectMaxDelay == 0 {
		src.ReconnectMaxDelay = 30 * time.Second
	}
	if src.MaxReconnectAttempts < 0 || src.ReconnectInitialDelay < 0 || src.ReconnectMaxDelay < src.ReconnectInitialDelay {
		return fmt.Errorf("source reconnect settings are invalid (attempts %d, delay %v-%v)",
			src.MaxReconnectAttempts, src.ReconnectInitialDelay, src.ReconnectMaxDelay)
	}
	return nil
}

func validateSink(sink *SinkConfig) error {
	if sink.Type == "" {
		sink.Type = "log"
	}

	types := sink.Types()
	if len(types) == 0 {
		return fmt.Errorf("sink.type names no sinks")
	}
	for _, t := range types {
		if !sinkTypes[t] {
			return fmt.Errorf("sink.type %q is not one of log, snapshot, recorder, window", t)
		}
		switch t {
		case "snapshot":
			if sink.OutputDir == "" {
				return fmt.Errorf("sink.output_dir is required for snapshot sinks")
			}
		case "recorder":
			if sink.Path == "" {
				return fmt.Errorf("sink.path is required for recorder sinks")
			}
		}
	}

	if sink.Title == "" {
		sink.Title = "frame-filter"
	}
	if sink.Format == "" {
		sink.Format = "png"
	}
	if sink.Format != "png" && sink.Format != "jpeg" {
		return fmt.Errorf("sink.format must be png or jpeg, got %q", sink.Format)
	}
	if sink.JPEGQuality == 0 {
		sink.JPEGQuality = 90
	}
	if sink.JPEGQuality < 1 || sink.JPEGQuality > 100 {
		return fmt.Errorf("sink.jpeg_quality must be 1-100, got %d", sink.JPEGQuality)
	}
	if sink.Every == 0 {
		sink.Every = 1
	}
	return nil
}

// Types returns the sink types listed in Type, trimmed and without blanks.
func (s SinkConfig) Types() []string {
	var types []string
	for _, t := range strings.Split(s.Type, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// Overrides holds command-line values that take precedence over the file.
// Zero values leave the file setting untouched.
type Overrides struct {
	KernelSize int
	Sigma      float64
	Source     string
	Sink       string
}

// Apply copies non-zero overrides into cfg and validates the result.
func (cfg *Config) Apply(o Overrides) error {
	if o.KernelSize != 0 {
		cfg.Kernel.Size = o.KernelSize
	}
	if o.Sigma != 0 {
		cfg.Kernel.Sigma = o.Sigma
	}
	if o.Source != "" {
		cfg.Source.Type = o.Source
	}
	if o.Sink != "" {
		cfg.Sink.Type = o.Sink
	}
	return Validate(cfg)
}

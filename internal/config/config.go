// Package config loads the frame-filter YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete frame-filter configuration
type Config struct {
	Kernel    KernelConfig    `yaml:"kernel"`
	Engine    EngineConfig    `yaml:"engine"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Source    SourceConfig    `yaml:"source"`
	Sink      SinkConfig      `yaml:"sink"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Warmup    WarmupConfig    `yaml:"warmup"`
}

// KernelConfig contains blur kernel settings
type KernelConfig struct {
	Size  int     `yaml:"size"`  // odd, >= 1
	Sigma float64 `yaml:"sigma"` // > 0
	Edge  string  `yaml:"edge"`  // truncate, renormalize, clamp
}

// EngineConfig contains convolution engine settings
type EngineConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// PipelineConfig contains frame channel settings
type PipelineConfig struct {
	Capacity       int           `yaml:"capacity"`
	Overflow       string        `yaml:"overflow"` // block, drop_oldest
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	DisplayWidth   int           `yaml:"display_width"`  // 0 = filtered size
	DisplayHeight  int           `yaml:"display_height"` // 0 = filtered size
}

// SourceConfig selects and configures the frame source
type SourceConfig struct {
	Type   string  `yaml:"type"` // synthetic, replay, gstreamer, camera
	Name   string  `yaml:"name"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`

	// synthetic
	Pattern string `yaml:"pattern"` // gradient, constant, checkerboard
	Value   int    `yaml:"value"`   // fill byte for constant
	Frames  uint64 `yaml:"frames"`  // 0 = unlimited (synthetic, replay)

	// camera
	Device string `yaml:"device"` // index ("0") or path/URL

	// gstreamer
	Launch string `yaml:"launch"`

	// replay
	Path string `yaml:"path"`

	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
}

// SinkConfig selects and configures display sinks
type SinkConfig struct {
	Type        string `yaml:"type"` // comma-separated: log, snapshot, recorder, window
	Title       string `yaml:"title"`
	OutputDir   string `yaml:"output_dir"`
	Format      string `yaml:"format"` // png, jpeg
	JPEGQuality int    `yaml:"jpeg_quality"`
	Every       uint64 `yaml:"every"`
	Path        string `yaml:"path"` // recorder output
}

// TelemetryConfig contains stats reporting settings
type TelemetryConfig struct {
	StatsInterval time.Duration `yaml:"stats_interval"`
	HealthAddr    string        `yaml:"health_addr"`    // "" disables the HTTP endpoint
	MQTT          MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker settings for stats publishing
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // "" disables MQTT
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`

	// ControlTopic receives JSON commands; responses go to ControlTopic + "/response".
	// "" disables the control plane.
	ControlTopic string `yaml:"control_topic"`
}

// WarmupConfig contains source warm-up settings
type WarmupConfig struct {
	Duration time.Duration `yaml:"duration"` // 0 skips warm-up
}

// Default returns the configuration used without a config file.
func Default() *Config {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not validate: %v", err))
	}
	return cfg
}

// Load reads, parses and validates a YAML configuration file.
//
// Fields missing from the file take their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

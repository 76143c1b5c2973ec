package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	framefilter "github.com/e7canasta/orion-care-sensor/modules/frame-filter"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/capture"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/internal/telemetry"
)

const (
	version = "v0.1.0"
)

// Flags holds command-line options. Non-zero values override the config file.
type Flags struct {
	ConfigPath string
	KernelSize int
	Sigma      float64
	Source     string
	Sink       string
	LogFormat  string
	Debug      bool
}

// errConfig marks failures caused by invalid configuration.
var errConfig = errors.New("configuration error")

func main() {
	flags := parseFlags()

	logger := newLogger(flags.LogFormat, flags.Debug)
	slog.SetDefault(logger)

	cfg, err := loadConfig(flags)
	if err != nil {
		logger.Error("frame-filter: invalid configuration", "error", err)
		os.Exit(1)
	}

	printBanner(cfg)

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("frame-filter: failed", "error", err)
		cancel()
		os.Exit(1)
	}

	logger.Info("frame-filter: stopped gracefully")
}

func parseFlags() Flags {
	var f Flags

	flag.StringVar(&f.ConfigPath, "config", "", "Path to YAML config file (defaults are used when empty)")
	flag.IntVar(&f.KernelSize, "kernel-size", 0, "Blur kernel size, odd (overrides config)")
	flag.Float64Var(&f.Sigma, "sigma", 0, "Gaussian sigma, > 0 (overrides config)")
	flag.StringVar(&f.Source, "source", "", "Frame source: synthetic, replay, gstreamer, camera (overrides config)")
	flag.StringVar(&f.Sink, "sink", "", "Comma-separated sinks: log, snapshot, recorder, window (overrides config)")
	flag.StringVar(&f.LogFormat, "log-format", "text", "Log format: text or json")
	flag.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println("frame-filter", version)
		os.Exit(0)
	}
	return f
}

func newLogger(format string, debug bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// loadConfig reads the config file (or defaults) and applies flag overrides.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigPath != "" {
		loaded, err := config.Load(f.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	err := cfg.Apply(config.Overrides{
		KernelSize: f.KernelSize,
		Sigma:      f.Sigma,
		Source:     f.Source,
		Sink:       f.Sink,
	})
	if err != nil {
		return nil, fmt.Errorf("config: invalid overrides: %w", err)
	}
	return cfg, nil
}

// run wires every component and blocks until shutdown.
//
// It returns nil on signal or when the source runs out of frames.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 1. Kernel and engine, fail fast on bad parameters
	pcfg, err := pipelineConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	// 2. Source
	src, err := openSource(ctx, cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("frame-filter: failed to close source", "error", err)
		}
	}()
	logger.Info("frame-filter: source opened", "type", cfg.Source.Type)

	// 3. Sinks
	sink, err := buildSinks(cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("failed to create sinks: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("frame-filter: failed to close sinks", "error", err)
		}
	}()

	// 4. Optional warm-up
	if cfg.Warmup.Duration > 0 {
		ws, err := capture.Warmup(ctx, src, cfg.Warmup.Duration)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("warm-up failed: %w", err)
		}
		if !ws.IsStable {
			logger.Warn("frame-filter: source FPS is unstable",
				"fps_mean", ws.FPSMean,
				"fps_stddev", ws.FPSStdDev,
			)
		}
	}

	// 5. Pipeline
	p, err := framefilter.New(pcfg, src, sink)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	collect := func() telemetry.Report {
		return telemetry.NewReport(p.Stats(), src.Stats())
	}

	// 6. Telemetry; a control plane shutdown stops the pipeline like a signal
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	stopTelemetry, err := startTelemetry(ctx, cfg.Telemetry, collect, shutdown, logger)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	// 7. Run until signal or source exhaustion
	start := time.Now()
	runErr := p.Run(ctx)

	printFinalStats(time.Since(start), p.Stats(), src.Stats())

	return runErr
}

// startTelemetry starts the periodic reporters and the health server.
// The returned func stops them.
func startTelemetry(ctx context.Context, cfg config.TelemetryConfig, collect telemetry.Collector, shutdown func(), logger *slog.Logger) (func(), error) {
	reporters := []telemetry.Reporter{telemetry.LogReporter{Logger: logger}}

	var (
		mqttReporter *telemetry.MQTTReporter
		control      *telemetry.Control
	)
	if cfg.MQTT.Broker != "" {
		mqttReporter = telemetry.NewMQTTReporter(telemetry.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		})

		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := mqttReporter.Connect(connectCtx)
		cancel()
		if err != nil {
			// The client keeps retrying in the background.
			logger.Warn("frame-filter: mqtt unavailable, stats publish deferred", "error", err)
		}
		reporters = append(reporters, mqttReporter)

		if cfg.MQTT.ControlTopic != "" {
			control = telemetry.NewControl(mqttReporter, cfg.MQTT.ControlTopic, telemetry.ControlCallbacks{
				OnGetStatus: collect,
				OnShutdown:  shutdown,
			})
			if err := control.Start(ctx); err != nil {
				logger.Warn("frame-filter: control plane disabled", "error", err)
				control = nil
			}
		}
	}

	var health *telemetry.HealthServer
	if cfg.HealthAddr != "" {
		health = telemetry.NewHealthServer(cfg.HealthAddr, collect)
		if err := health.Start(); err != nil {
			if control != nil {
				control.Stop()
			}
			if mqttReporter != nil {
				mqttReporter.Close()
			}
			return nil, fmt.Errorf("failed to start health server: %w", err)
		}
	}

	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		telemetry.Run(tctx, cfg.StatsInterval, collect, reporters...)
	}()

	return func() {
		cancel()
		<-done

		if health != nil {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 3*time.Second)
			if err := health.Shutdown(shutdownCtx); err != nil {
				logger.Warn("frame-filter: health server shutdown failed", "error", err)
			}
			cancelShutdown()
		}
		if control != nil {
			control.Stop()
		}
		if mqttReporter != nil {
			mqttReporter.Close()
		}
	}, nil
}

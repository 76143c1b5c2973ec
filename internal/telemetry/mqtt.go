package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned by MQTTReporter.Report while the broker is
// unreachable.
var ErrNotConnected = errors.New("telemetry: mqtt not connected")

// MQTTConfig configures an MQTTReporter.
type MQTTConfig struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTReporter publishes each report as JSON to a topic.
type MQTTReporter struct {
	cfg    MQTTConfig
	client mqtt.Client

	connected atomic.Bool
	published atomic.Uint64
	errors    atomic.Uint64
}

// NewMQTTReporter returns a reporter for cfg. Call Connect before use.
func NewMQTTReporter(cfg MQTTConfig) *MQTTReporter {
	return &MQTTReporter{cfg: cfg}
}

// Connect establishes the broker connection. The client reconnects on its
// own after a connection loss.
func (m *MQTTReporter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		m.connected.Store(true)
		slog.Info("telemetry: mqtt connection established",
			"broker", m.cfg.Broker,
			"client_id", m.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		m.connected.Store(false)
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", m.cfg.Broker,
		)
	}

	m.client = mqtt.NewClient(opts)

	slog.Info("telemetry: connecting to mqtt broker", "broker", m.cfg.Broker)

	token := m.client.Connect()
	wait := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("telemetry: mqtt connection timeout (%s)", m.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connection failed: %w", err)
	}

	m.connected.Store(true)
	return nil
}

// Report publishes r to the configured topic.
func (m *MQTTReporter) Report(ctx context.Context, r Report) error {
	if m.client == nil || !m.connected.Load() {
		m.errors.Add(1)
		return ErrNotConnected
	}

	payload, err := json.Marshal(r)
	if err != nil {
		m.errors.Add(1)
		return fmt.Errorf("telemetry: failed to marshal report: %w", err)
	}

	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		m.errors.Add(1)
		return fmt.Errorf("telemetry: publish timeout")
	}
	if err := token.Error(); err != nil {
		m.errors.Add(1)
		return fmt.Errorf("telemetry: publish failed: %w", err)
	}

	m.published.Add(1)
	slog.Debug("telemetry: stats published",
		"topic", m.cfg.Topic,
		"qos", m.cfg.QoS,
		"size", len(payload),
	)
	return nil
}

// Connected reports whether the broker connection is up.
func (m *MQTTReporter) Connected() bool { return m.connected.Load() }

// Stats returns the number of published reports and failures.
func (m *MQTTReporter) Stats() (published, failed uint64) {
	return m.published.Load(), m.errors.Load()
}

// Close disconnects from the broker.
func (m *MQTTReporter) Close() {
	if m.client == nil {
		return
	}
	m.client.Disconnect(250)
	m.connected.Store(false)
	slog.Info("telemetry: mqtt disconnected", "published", m.published.Load())
}

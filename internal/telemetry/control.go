package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Command is a control plane request.
type Command struct {
	Command string `json:"command"`
}

// Response answers a Command.
type Response struct {
	CommandAck string `json:"command_ack"`
	Status     string `json:"status"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// ControlCallbacks connects commands to the running process.
// A nil callback makes its command report "not implemented".
type ControlCallbacks struct {
	OnGetStatus func() Report
	OnShutdown  func()
}

// shutdownDelay lets the shutdown response reach the broker before the
// process starts tearing down.
const shutdownDelay = 500 * time.Millisecond

// Control answers JSON commands received on an MQTT topic.
//
// Supported commands:
//
//	get_status  responds with the current Report
//	shutdown    acknowledges, then calls OnShutdown
type Control struct {
	client        mqtt.Client
	topic         string
	responseTopic string
	qos           byte
	callbacks     ControlCallbacks

	commands chan Command
}

// NewControl returns a control handler sharing the reporter's connection.
// Call Start after m.Connect.
func NewControl(m *MQTTReporter, topic string, callbacks ControlCallbacks) *Control {
	return &Control{
		client:        m.client,
		topic:         topic,
		responseTopic: topic + "/response",
		qos:           m.cfg.QoS,
		callbacks:     callbacks,
		commands:      make(chan Command, 10),
	}
}

// Start subscribes to the control topic and processes commands until ctx
// is done.
func (c *Control) Start(ctx context.Context) error {
	if c.client == nil {
		return ErrNotConnected
	}

	slog.Info("telemetry: subscribing to control plane", "topic", c.topic, "qos", c.qos)

	token := c.client.Subscribe(c.topic, c.qos, c.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("telemetry: control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: control plane subscription failed: %w", err)
	}

	go c.process(ctx)
	return nil
}

// Stop unsubscribes from the control topic.
func (c *Control) Stop() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Unsubscribe(c.topic).WaitTimeout(2 * time.Second)
	}
	slog.Info("telemetry: control plane stopped")
}

func (c *Control) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		slog.Error("telemetry: failed to parse control command", "error", err)
		c.respond(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	slog.Info("telemetry: control command received", "command", cmd.Command)

	select {
	case c.commands <- cmd:
	default:
		slog.Warn("telemetry: command queue full, dropping command", "command", cmd.Command)
	}
}

func (c *Control) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			resp, after := c.Handle(cmd)
			c.respond(resp)
			if after != nil {
				time.AfterFunc(shutdownDelay, after)
			}
		}
	}
}

// ParseCommand decodes a JSON command.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, err
	}
	if cmd.Command == "" {
		return Command{}, fmt.Errorf("telemetry: command field is empty")
	}
	return cmd, nil
}

// Handle executes cmd and returns its response. A non-nil after func must
// run once the response has been sent.
func (c *Control) Handle(cmd Command) (resp Response, after func()) {
	resp.CommandAck = cmd.Command

	switch cmd.Command {
	case "get_status":
		if c.callbacks.OnGetStatus == nil {
			resp.Status, resp.Error = "error", "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = c.callbacks.OnGetStatus()

	case "shutdown":
		if c.callbacks.OnShutdown == nil {
			resp.Status, resp.Error = "error", "shutdown not implemented"
			break
		}
		slog.Warn("telemetry: shutdown command received via control plane")
		resp.Status = "success"
		resp.Data = map[string]any{"shutdown_initiated": true}
		after = c.callbacks.OnShutdown

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}
	return resp, after
}

func (c *Control) respond(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("telemetry: failed to marshal response", "error", err)
		return
	}

	token := c.client.Publish(c.responseTopic, c.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("telemetry: response publish timeout", "command_ack", resp.CommandAck)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("telemetry: failed to publish response", "error", err)
		return
	}

	slog.Debug("telemetry: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}

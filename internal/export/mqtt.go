// Package export publishes telemetry and control events to an MQTT broker.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/CristiGvl/ecfanctl/internal/view"
)

const publishTimeout = 5 * time.Second

// Client is the part of mqtt.Client used by the publisher.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Options configures a broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect dials the broker.
func Connect(opts Options) (mqtt.Client, error) {
	o := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(o)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to %s", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Broker, err)
	}
	return client, nil
}

// Publisher forwards hub events to <prefix>/telemetry and <prefix>/events.
type Publisher struct {
	client Client
	prefix string
	log    *slog.Logger
}

// NewPublisher creates a publisher on a connected client.
func NewPublisher(client Client, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		log:    logger.With("component", "mqtt"),
	}
}

// TelemetryTopic is where snapshots are published.
func (p *Publisher) TelemetryTopic() string { return p.prefix + "/telemetry" }

// EventsTopic is where control events are published.
func (p *Publisher) EventsTopic() string { return p.prefix + "/events" }

// Publish sends one event. Telemetry events carry only the snapshot.
func (p *Publisher) Publish(e view.Event) error {
	topic := p.EventsTopic()
	var body interface{} = e
	if e.Kind == view.EventTelemetry {
		if e.Telemetry == nil {
			return nil
		}
		topic = p.TelemetryTopic()
		body = e.Telemetry
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Kind, err)
	}

	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Run publishes events until ctx is cancelled or events is closed. Publish
// failures are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, events <-chan view.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := p.Publish(e); err != nil {
				p.log.Warn("mqtt publish failed", "kind", e.Kind, "error", err)
			}
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

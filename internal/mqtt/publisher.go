package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"iot-pipeline/internal/models"
)

// Publisher publishes actuation decisions read from a channel
type Publisher struct {
	client mqtt.Client
	logger *slog.Logger

	// Input channel (written by the pipeline sink, read by the publisher)
	EventChan chan *models.ActuationEvent

	actuationTopic string // e.g., "actuator/{sensor_id}/command"
	qos            byte
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	ActuationTopic string // e.g., "actuator/{sensor_id}/command"
	QoS            byte
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		ActuationTopic: "actuator/{sensor_id}/command",
		QoS:            1,
	}
}

// command is the JSON payload sent to actuators
type command struct {
	models.ActuationEvent
	State string `json:"state"`
}

// NewPublisher creates a publisher reading from eventChan
func NewPublisher(
	client mqtt.Client,
	config PublisherConfig,
	eventChan chan *models.ActuationEvent,
	logger *slog.Logger,
) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ActuationTopic == "" {
		config.ActuationTopic = DefaultPublisherConfig().ActuationTopic
	}
	return &Publisher{
		client:         client,
		logger:         logger.With("component", "mqtt-publisher"),
		EventChan:      eventChan,
		actuationTopic: config.ActuationTopic,
		qos:            config.QoS,
	}
}

// Start publishes events from the channel until ctx is cancelled or the
// channel is closed
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("MQTT Publisher: Context cancelled, shutting down...")
			return

		case event, ok := <-p.EventChan:
			if !ok {
				p.logger.Info("MQTT Publisher: Event channel closed, shutting down...")
				return
			}

			if err := p.Publish(event); err != nil {
				p.logger.Error("MQTT Publisher: Publish failed", "sensor", event.SensorID, "error", err)
			}
		}
	}
}

// Publish sends one actuation command to the sensor's topic
func (p *Publisher) Publish(event *models.ActuationEvent) error {
	payload, err := json.Marshal(command{ActuationEvent: *event, State: event.State()})
	if err != nil {
		return fmt.Errorf("failed to marshal actuation event: %w", err)
	}

	topic := formatTopic(p.actuationTopic, event.SensorID)

	token := p.client.Publish(topic, p.qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish actuation event: %w", token.Error())
	}

	p.logger.Debug("MQTT Publisher: Published actuation", "sensor", event.SensorID, "topic", topic, "state", event.State())
	return nil
}

// formatTopic replaces the {sensor_id} placeholder with the sensor id
func formatTopic(topicPattern, sensorID string) string {
	return strings.ReplaceAll(topicPattern, "{sensor_id}", sensorID)
}

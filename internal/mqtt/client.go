package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Client owns the broker connection used by Publisher
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger *slog.Logger
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string // empty generates "iot-pipeline-<uuid>"
	Username string
	Password string

	ConnectTimeout time.Duration // bound on the initial connect
	KeepAlive      time.Duration
}

// DefaultClientConfig returns default configuration for broker
func DefaultClientConfig(broker string) ClientConfig {
	return ClientConfig{
		Broker:         broker,
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      60 * time.Second,
	}
}

// withDefaults fills unset fields. Several pipelines may share a broker, so
// a missing client id is made unique rather than left to the broker.
func (c ClientConfig) withDefaults() ClientConfig {
	defaults := DefaultClientConfig(c.Broker)
	if c.ClientID == "" {
		c.ClientID = "iot-pipeline-" + uuid.NewString()
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaults.KeepAlive
	}
	return c
}

// NewClient connects to the broker, failing if the connection is not
// acknowledged within ConnectTimeout
func NewClient(config ClientConfig, logger *slog.Logger) (*Client, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt", "client_id", config.ClientID)

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetUsername(config.Username).
		SetPassword(config.Password).
		SetAutoReconnect(true).
		SetKeepAlive(config.KeepAlive).
		SetPingTimeout(config.KeepAlive / 6).
		SetConnectTimeout(config.ConnectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("MQTT: Connection established")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT: Connection lost, reconnecting", "error", err)
		})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out after %s", config.Broker, config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", config.Broker, err)
	}

	logger.Info("MQTT Client: Connected to broker", "broker", config.Broker)

	return &Client{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// GetNativeClient returns the underlying paho MQTT client
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// ClientID returns the id the client registered with
func (c *Client) ClientID() string {
	return c.config.ClientID
}

// Close disconnects from the broker, waiting briefly for in-flight publishes
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info("MQTT Client: Disconnected")
}

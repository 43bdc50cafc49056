package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-pipeline/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startBroker runs an in-process broker on a free loopback port
func startBroker(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })

	return "tcp://" + addr
}

func connect(t *testing.T, broker, clientID string) *Client {
	t.Helper()

	client, err := NewClient(ClientConfig{Broker: broker, ClientID: clientID}, testLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func subscribe(t *testing.T, client *Client, topic string) <-chan mqtt.Message {
	t.Helper()

	received := make(chan mqtt.Message, 10)
	token := client.GetNativeClient().Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		received <- msg
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	return received
}

func TestFormatTopic(t *testing.T) {
	assert.Equal(t, "actuator/s1/command", formatTopic("actuator/{sensor_id}/command", "s1"))
	assert.Equal(t, "fixed/topic", formatTopic("fixed/topic", "s1"))
}

func TestPublisherPublishesCommand(t *testing.T) {
	broker := startBroker(t)
	listener := connect(t, broker, "listener")
	received := subscribe(t, listener, "actuator/+/command")

	client := connect(t, broker, "publisher")
	publisher := NewPublisher(client.GetNativeClient(), DefaultPublisherConfig(), nil, testLogger())

	event := &models.ActuationEvent{SensorID: "s1", Average: 26.5, Timestamp: 1700000000000, TurnOn: true}
	require.NoError(t, publisher.Publish(event))

	select {
	case msg := <-received:
		assert.Equal(t, "actuator/s1/command", msg.Topic())

		var got map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload(), &got))
		assert.Equal(t, "s1", got["sensor_id"])
		assert.Equal(t, 26.5, got["average"])
		assert.Equal(t, true, got["turn_on"])
		assert.Equal(t, "ON", got["state"])
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestPublisherStartDrainsChannel(t *testing.T) {
	broker := startBroker(t)
	listener := connect(t, broker, "listener")
	received := subscribe(t, listener, "actuator/#")

	client := connect(t, broker, "publisher")
	events := make(chan *models.ActuationEvent, 2)
	publisher := NewPublisher(client.GetNativeClient(), DefaultPublisherConfig(), events, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		publisher.Start(ctx)
	}()

	events <- &models.ActuationEvent{SensorID: "a", Average: 22.0}
	events <- &models.ActuationEvent{SensorID: "b", Average: 28.0, TurnOn: true}

	topics := map[string]string{}
	for range 2 {
		select {
		case msg := <-received:
			var got map[string]any
			require.NoError(t, json.Unmarshal(msg.Payload(), &got))
			topics[msg.Topic()] = got["state"].(string)
		case <-time.After(5 * time.Second):
			t.Fatal("missing message")
		}
	}
	assert.Equal(t, map[string]string{
		"actuator/a/command": "OFF",
		"actuator/b/command": "ON",
	}, topics)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestPublisherStopsOnClosedChannel(t *testing.T) {
	events := make(chan *models.ActuationEvent)
	publisher := NewPublisher(nil, PublisherConfig{}, events, testLogger())
	close(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		publisher.Start(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not stop")
	}
	assert.Equal(t, "actuator/{sensor_id}/command", publisher.actuationTopic)
}

func TestClientConfigDefaults(t *testing.T) {
	cfg := ClientConfig{Broker: "tcp://localhost:1883"}.withDefaults()

	assert.True(t, strings.HasPrefix(cfg.ClientID, "iot-pipeline-"))
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.KeepAlive)

	other := ClientConfig{Broker: "tcp://localhost:1883"}.withDefaults()
	assert.NotEqual(t, cfg.ClientID, other.ClientID)

	custom := ClientConfig{ClientID: "fixed", ConnectTimeout: time.Second, KeepAlive: 5 * time.Second}.withDefaults()
	assert.Equal(t, "fixed", custom.ClientID)
	assert.Equal(t, time.Second, custom.ConnectTimeout)
	assert.Equal(t, 5*time.Second, custom.KeepAlive)
}

func TestNewClientGeneratesClientID(t *testing.T) {
	broker := startBroker(t)

	client := connect(t, broker, "")
	assert.True(t, strings.HasPrefix(client.ClientID(), "iot-pipeline-"))
}

func TestNewClientUnreachableBroker(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = NewClient(ClientConfig{Broker: "tcp://" + addr, ClientID: "nobody", ConnectTimeout: time.Second}, testLogger())
	assert.Error(t, err)
}

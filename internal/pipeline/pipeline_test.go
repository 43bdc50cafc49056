package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-pipeline/internal/models"
	"iot-pipeline/internal/services"
	"iot-pipeline/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSource replays the same values for every sensor and panics for
// sensor "broken"
type scriptedSource struct {
	mu     sync.Mutex
	values []float64
	next   map[string]int
}

func newScriptedSource(values ...float64) *scriptedSource {
	return &scriptedSource{values: values, next: map[string]int{}}
}

func (s *scriptedSource) Next(sensorID string) models.Reading {
	if sensorID == "broken" {
		panic("sensor offline")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.next[sensorID]
	if i < len(s.values)-1 {
		s.next[sensorID] = i + 1
	}
	return models.Reading{SensorID: sensorID, Value: s.values[i], Timestamp: time.Now().UnixMilli()}
}

type collectingSink struct {
	mu     sync.Mutex
	events map[string][]models.ActuationEvent
}

func newCollectingSink() *collectingSink {
	return &collectingSink{events: map[string][]models.ActuationEvent{}}
}

func (c *collectingSink) Deliver(_ context.Context, event *models.ActuationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event.SensorID] = append(c.events[event.SensorID], *event)
	return nil
}

func (c *collectingSink) count(sensorID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events[sensorID])
}

func (c *collectingSink) snapshot(sensorID string) []models.ActuationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ActuationEvent(nil), c.events[sensorID]...)
}

func serve(t *testing.T, register func(*stream.Server)) string {
	t.Helper()

	cfg := stream.DefaultServerConfig("test")
	cfg.ShutdownGrace = 50 * time.Millisecond
	server := stream.NewServer(cfg, testLogger())
	register(server)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return listener.Addr().String()
}

func startStages(t *testing.T, source *scriptedSource) Endpoints {
	t.Helper()

	return Endpoints{
		Source:     serve(t, services.NewSensorService(source, services.SensorServiceConfig{Interval: 5 * time.Millisecond}).Register),
		Aggregator: serve(t, services.NewProcessorService().Register),
		Decision:   serve(t, services.NewActuatorService(services.DefaultActuatorServiceConfig()).Register),
	}
}

func TestChainDeliversDecisions(t *testing.T) {
	endpoints := startStages(t, newScriptedSource(22.0, 28.0, 30.0))
	sink := newCollectingSink()
	chain := NewChain(endpoints, []Sink{sink, NewLogSink(testLogger())}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- chain.Run(ctx, "s1") }()

	require.Eventually(t, func() bool {
		return sink.count("s1") >= 4
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("chain did not stop")
	}

	events := sink.snapshot("s1")
	assert.Equal(t, 22.0, events[0].Average)
	assert.False(t, events[0].TurnOn)
	assert.Equal(t, 25.0, events[1].Average)
	assert.False(t, events[1].TurnOn)
	assert.InDelta(t, 80.0/3, events[2].Average, 1e-9)
	assert.True(t, events[2].TurnOn)
	assert.Equal(t, 27.5, events[3].Average)
	for _, e := range events {
		assert.Equal(t, "s1", e.SensorID)
	}
}

func TestChainUnreachableStage(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := l.Addr().String()
	require.NoError(t, l.Close())

	chain := NewChain(Endpoints{Source: dead, Aggregator: dead, Decision: dead}, nil, testLogger())
	assert.Error(t, chain.Run(context.Background(), "s1"))
}

func TestComposerChainsAreIndependent(t *testing.T) {
	endpoints := startStages(t, newScriptedSource(26.0))
	sink := newCollectingSink()
	composer := NewComposer(endpoints, []Sink{sink}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- composer.Run(ctx, []string{"a", "broken", "b"}) }()

	require.Eventually(t, func() bool {
		return sink.count("a") >= 3 && sink.count("b") >= 3
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("composer did not stop")
	}

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor broken")
	assert.ErrorIs(t, err, stream.ErrInternal)
	assert.NotContains(t, err.Error(), "sensor a")
	assert.Zero(t, sink.count("broken"))

	for _, e := range sink.snapshot("a") {
		assert.Equal(t, 26.0, e.Average)
		assert.True(t, e.TurnOn)
	}
}

func TestComposerRequiresSensors(t *testing.T) {
	composer := NewComposer(Endpoints{}, nil, testLogger())
	assert.Error(t, composer.Run(context.Background(), nil))
}

func TestChannelSink(t *testing.T) {
	ch := make(chan *models.ActuationEvent, 1)
	sink := NewChannelSink(ch, 10*time.Millisecond)
	event := &models.ActuationEvent{SensorID: "s1"}

	require.NoError(t, sink.Deliver(context.Background(), event))
	assert.Same(t, event, <-ch)

	ch <- event
	assert.ErrorIs(t, sink.Deliver(context.Background(), event), ErrSinkFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Deliver(ctx, event), context.Canceled)
}

func TestSinkFunc(t *testing.T) {
	var got string
	sink := SinkFunc(func(_ context.Context, e *models.ActuationEvent) error {
		got = e.SensorID
		return nil
	})
	require.NoError(t, sink.Deliver(context.Background(), &models.ActuationEvent{SensorID: "x"}))
	assert.Equal(t, "x", got)
}

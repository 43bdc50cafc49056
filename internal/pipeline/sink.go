package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"iot-pipeline/internal/models"
)

// ErrSinkFull is returned when a channel sink could not hand off an event in time
var ErrSinkFull = errors.New("pipeline: sink channel full")

// Sink receives every decision a chain produces
type Sink interface {
	Deliver(ctx context.Context, event *models.ActuationEvent) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, event *models.ActuationEvent) error

func (f SinkFunc) Deliver(ctx context.Context, event *models.ActuationEvent) error {
	return f(ctx, event)
}

// LogSink writes one line per decision
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, event *models.ActuationEvent) error {
	s.logger.Info("Pipeline: Actuation",
		"sensor", event.SensorID, "average", event.Average, "state", event.State())
	return nil
}

// ChannelSink hands events to a consumer loop such as the MQTT publisher or
// the ClickHouse recorder. Events that cannot be handed off within the
// timeout are dropped.
type ChannelSink struct {
	ch      chan<- *models.ActuationEvent
	timeout time.Duration
}

func NewChannelSink(ch chan<- *models.ActuationEvent, timeout time.Duration) *ChannelSink {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ChannelSink{ch: ch, timeout: timeout}
}

func (s *ChannelSink) Deliver(ctx context.Context, event *models.ActuationEvent) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrSinkFull
	}
}

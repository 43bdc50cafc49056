package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"iot-pipeline/internal/models"
	"iot-pipeline/internal/services"
)

// Endpoints are the addresses of the three stages
type Endpoints struct {
	Source     string
	Aggregator string
	Decision   string
}

// Chain connects one sensor's reading stream through aggregation and decision
// and hands every decision to the sinks
type Chain struct {
	sensor    *services.SensorClient
	processor *services.ProcessorClient
	actuator  *services.ActuatorClient
	sinks     []Sink
	logger    *slog.Logger
}

// NewChain creates a chain against the given stage endpoints
func NewChain(endpoints Endpoints, sinks []Sink, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		sensor:    services.NewSensorClient(endpoints.Source),
		processor: services.NewProcessorClient(endpoints.Aggregator),
		actuator:  services.NewActuatorClient(endpoints.Decision),
		sinks:     sinks,
		logger:    logger,
	}
}

// Run streams sensorID through the pipeline until ctx is cancelled or one of
// the stages fails. Cancellation of ctx is a clean stop and returns nil.
func (c *Chain) Run(ctx context.Context, sensorID string) error {
	logger := c.logger.With("sensor", sensorID)

	g, gctx := errgroup.WithContext(ctx)

	readings, err := c.sensor.StreamReadings(gctx, sensorID)
	if err != nil {
		return fmt.Errorf("failed to open reading stream: %w", err)
	}
	defer readings.Close()

	averages, err := c.processor.ProcessReadings(gctx)
	if err != nil {
		return fmt.Errorf("failed to open aggregation stream: %w", err)
	}
	defer averages.Close()

	decisions, err := c.actuator.Execute(gctx)
	if err != nil {
		return fmt.Errorf("failed to open decision stream: %w", err)
	}
	defer decisions.Close()

	logger.Info("Pipeline: Chain started",
		"readings_call", readings.CallID(),
		"averages_call", averages.CallID(),
		"decisions_call", decisions.CallID())

	g.Go(func() error {
		return forward(readings.Recv, averages.Send, averages.CloseSend, "readings")
	})
	g.Go(func() error {
		return forward(averages.Recv, decisions.Send, decisions.CloseSend, "averages")
	})
	g.Go(func() error {
		for {
			event, err := decisions.Recv()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("decisions: %w", err)
			}
			c.deliver(gctx, logger, &event)
		}
	})

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("Pipeline: Chain stopped")
		return nil
	}
	return err
}

func (c *Chain) deliver(ctx context.Context, logger *slog.Logger, event *models.ActuationEvent) {
	for _, sink := range c.sinks {
		if err := sink.Deliver(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Pipeline: Sink failed", "error", err)
		}
	}
}

// forward copies messages from one stream into the next, half-closing the
// next stream once the first ends cleanly
func forward[T any](recv func() (T, error), send func(T) error, closeSend func() error, name string) error {
	for {
		v, err := recv()
		if err == io.EOF {
			if err := closeSend(); err != nil {
				return fmt.Errorf("%s: failed to close stream: %w", name, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := send(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
}

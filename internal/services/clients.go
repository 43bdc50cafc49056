package services

import (
	"context"

	"iot-pipeline/internal/models"
	"iot-pipeline/internal/stream"
)

type (
	// ReadingStream receives readings from the sensor stage
	ReadingStream = stream.ServerStream[models.Reading]
	// ProcessStream sends readings to and receives averages from the aggregation stage
	ProcessStream = stream.BidiStream[models.Reading, models.Average]
	// ExecuteStream sends averages to and receives decisions from the decision stage
	ExecuteStream = stream.BidiStream[models.Average, models.ActuationEvent]
)

// SensorClient calls the sensor stage
type SensorClient struct {
	client *stream.Client
}

// NewSensorClient creates a client for the sensor stage at addr
func NewSensorClient(addr string) *SensorClient {
	return &SensorClient{client: stream.NewClient(addr)}
}

// StreamReadings opens an unbounded reading stream for sensorID. Cancel ctx to stop it.
func (c *SensorClient) StreamReadings(ctx context.Context, sensorID string) (ReadingStream, error) {
	s, err := c.client.Open(ctx, MethodStreamReadings, models.SensorRequest{SensorID: sensorID})
	if err != nil {
		return ReadingStream{}, err
	}
	return ReadingStream{ClientStream: s}, nil
}

// ProcessorClient calls the aggregation stage
type ProcessorClient struct {
	client *stream.Client
}

// NewProcessorClient creates a client for the aggregation stage at addr
func NewProcessorClient(addr string) *ProcessorClient {
	return &ProcessorClient{client: stream.NewClient(addr)}
}

// ProcessReadings opens an aggregation session
func (c *ProcessorClient) ProcessReadings(ctx context.Context) (ProcessStream, error) {
	s, err := c.client.Open(ctx, MethodProcessReadings, nil)
	if err != nil {
		return ProcessStream{}, err
	}
	return stream.NewBidiStream[models.Reading, models.Average](s), nil
}

// ActuatorClient calls the decision stage
type ActuatorClient struct {
	client *stream.Client
}

// NewActuatorClient creates a client for the decision stage at addr
func NewActuatorClient(addr string) *ActuatorClient {
	return &ActuatorClient{client: stream.NewClient(addr)}
}

// Execute opens a decision session
func (c *ActuatorClient) Execute(ctx context.Context) (ExecuteStream, error) {
	s, err := c.client.Open(ctx, MethodExecute, nil)
	if err != nil {
		return ExecuteStream{}, err
	}
	return stream.NewBidiStream[models.Average, models.ActuationEvent](s), nil
}

package services

import (
	"iot-pipeline/internal/aggregator"
	"iot-pipeline/internal/models"
	"iot-pipeline/internal/stream"
)

// ProcessorService turns a stream of readings into a stream of running averages.
// Every call starts from an empty accumulator.
type ProcessorService struct{}

// NewProcessorService creates the aggregation stage
func NewProcessorService() *ProcessorService {
	return &ProcessorService{}
}

// Register binds the aggregation stage to server
func (p *ProcessorService) Register(server *stream.Server) {
	server.Handle(MethodProcessReadings, stream.BidiRoute(p.open))
}

func (p *ProcessorService) open(sess *stream.Session) stream.Transform[models.Reading, models.Average] {
	state := aggregator.Init()

	return func(reading models.Reading) (models.Average, error) {
		// The first reading fixes the sensor id for the whole session.
		sensorID := sess.BindSensor(reading.SensorID)

		var average float64
		state, average = aggregator.Update(state, reading.Value)

		sess.Logger().Debug("ProcessorService: Average updated",
			"sensor", sensorID, "value", reading.Value, "average", average, "count", state.Count)

		return models.Average{
			SensorID:  sensorID,
			Average:   average,
			Timestamp: sess.Stamp(),
		}, nil
	}
}

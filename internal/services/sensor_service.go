package services

import (
	"time"

	"iot-pipeline/internal/models"
	"iot-pipeline/internal/sensor"
	"iot-pipeline/internal/stream"
)

// SensorService streams simulated readings for the sensor named in the request
type SensorService struct {
	source   sensor.ReadingSource
	interval time.Duration
}

// SensorServiceConfig holds configuration for the sensor stage
type SensorServiceConfig struct {
	Interval time.Duration // time between readings
}

// DefaultSensorServiceConfig returns default configuration
func DefaultSensorServiceConfig() SensorServiceConfig {
	return SensorServiceConfig{
		Interval: time.Second,
	}
}

// NewSensorService creates a sensor stage drawing values from source
func NewSensorService(source sensor.ReadingSource, config SensorServiceConfig) *SensorService {
	if config.Interval <= 0 {
		config.Interval = DefaultSensorServiceConfig().Interval
	}
	return &SensorService{
		source:   source,
		interval: config.Interval,
	}
}

// Register binds the sensor stage to server
func (s *SensorService) Register(server *stream.Server) {
	server.Handle(MethodStreamReadings, stream.TickerRoute(s.interval, s.open))
}

// open binds the session to the requested sensor and returns the per-tick transform
func (s *SensorService) open(sess *stream.Session, req models.SensorRequest) (stream.Transform[time.Time, models.Reading], error) {
	sensorID := sess.BindSensor(req.SensorID)
	sess.Logger().Info("SensorService: Streaming readings", "sensor", sensorID, "interval", s.interval)

	return func(time.Time) (models.Reading, error) {
		return s.source.Next(sensorID), nil
	}, nil
}

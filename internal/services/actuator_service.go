package services

import (
	"iot-pipeline/internal/decision"
	"iot-pipeline/internal/models"
	"iot-pipeline/internal/stream"
)

// ActuatorService decides on/off for every average it receives
type ActuatorService struct {
	decide func(average float64) bool
}

// ActuatorServiceConfig holds configuration for the decision stage
type ActuatorServiceConfig struct {
	Threshold float64 // Celsius, strict greater-than turns on
}

// DefaultActuatorServiceConfig returns default configuration
func DefaultActuatorServiceConfig() ActuatorServiceConfig {
	return ActuatorServiceConfig{
		Threshold: decision.DefaultThreshold,
	}
}

// NewActuatorService creates the decision stage
func NewActuatorService(config ActuatorServiceConfig) *ActuatorService {
	decide := decision.Decide
	if config.Threshold != decision.DefaultThreshold {
		decide = decision.NewDecider(config.Threshold).Decide
	}
	return &ActuatorService{
		decide: decide,
	}
}

// Register binds the decision stage to server
func (a *ActuatorService) Register(server *stream.Server) {
	server.Handle(MethodExecute, stream.BidiRoute(a.open))
}

func (a *ActuatorService) open(sess *stream.Session) stream.Transform[models.Average, models.ActuationEvent] {
	return func(avg models.Average) (models.ActuationEvent, error) {
		event := models.ActuationEvent{
			SensorID:  sess.BindSensor(avg.SensorID),
			Average:   avg.Average,
			Timestamp: sess.Stamp(),
			TurnOn:    a.decide(avg.Average),
		}

		sess.Logger().Info("ActuatorService: Decision",
			"sensor", event.SensorID, "average", event.Average, "state", event.State())

		return event, nil
	}
}

package models

import "time"

// SensorRequest opens a reading stream for one sensor
type SensorRequest struct {
	SensorID string `json:"sensor_id"`
}

// Reading represents one simulated temperature sample
type Reading struct {
	SensorID  string  `json:"sensor_id"`
	Value     float64 `json:"value"`     // Celsius
	Timestamp int64   `json:"timestamp"` // ms since epoch
}

// Average is the cumulative mean of the readings seen so far in one session
type Average struct {
	SensorID  string  `json:"sensor_id"`
	Average   float64 `json:"average"`   // Celsius
	Timestamp int64   `json:"timestamp"` // ms since epoch
}

// ActuationEvent is the on/off decision taken for one average
type ActuationEvent struct {
	SensorID  string  `json:"sensor_id"`
	Average   float64 `json:"average"`
	Timestamp int64   `json:"timestamp"`
	TurnOn    bool    `json:"turn_on"`
}

// State renders the decision the way the actuator log prints it
func (e *ActuationEvent) State() string {
	if e.TurnOn {
		return "ON"
	}
	return "OFF"
}

// Millis converts a wall-clock instant to the wire timestamp format
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

package services

// Method names of the three stage endpoints
const (
	MethodStreamReadings  = "sensor.Sensor/StreamReadings"
	MethodProcessReadings = "processor.Processor/ProcessReadings"
	MethodExecute         = "actuator.Actuator/Execute"
)

package decision

// DefaultThreshold is the average above which the actuator is switched on (Celsius)
const DefaultThreshold = 25.0

// Decide reports whether average is strictly above DefaultThreshold.
// The threshold itself decides off.
func Decide(average float64) bool {
	return average > DefaultThreshold
}

// Decider applies a configurable threshold with the same strict comparison
type Decider struct {
	Threshold float64
}

// NewDecider creates a decider for threshold
func NewDecider(threshold float64) Decider {
	return Decider{Threshold: threshold}
}

// Decide reports whether average is strictly above the threshold
func (d Decider) Decide(average float64) bool {
	return average > d.Threshold
}

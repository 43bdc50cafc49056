package sensor

import (
	"math/rand/v2"
	"sync"
	"time"

	"iot-pipeline/internal/models"
)

// ReadingSource produces one reading per call for the given sensor
type ReadingSource interface {
	Next(sensorID string) models.Reading
}

// RangeConfig holds the plausible range of simulated values
type RangeConfig struct {
	Min float64 // Celsius
	Max float64 // Celsius
}

// DefaultRangeConfig returns the indoor temperature range
func DefaultRangeConfig() RangeConfig {
	return RangeConfig{
		Min: 20.0,
		Max: 30.0,
	}
}

// UniformSource draws values uniformly from a fixed range.
// Safe for use by concurrent sessions.
type UniformSource struct {
	cfg RangeConfig
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformSource creates a source backed by rng. A nil rng uses a randomly seeded generator.
func NewUniformSource(cfg RangeConfig, rng *rand.Rand) *UniformSource {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Max < cfg.Min {
		cfg.Min, cfg.Max = cfg.Max, cfg.Min
	}
	return &UniformSource{
		cfg: cfg,
		now: time.Now,
		rng: rng,
	}
}

// Next returns a reading stamped with the current wall-clock time
func (s *UniformSource) Next(sensorID string) models.Reading {
	s.mu.Lock()
	sample := s.rng.Float64()
	s.mu.Unlock()

	return models.Reading{
		SensorID:  sensorID,
		Value:     s.cfg.Min + sample*(s.cfg.Max-s.cfg.Min),
		Timestamp: models.Millis(s.now()),
	}
}

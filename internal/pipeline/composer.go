package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Composer runs one independent chain per sensor id
type Composer struct {
	endpoints Endpoints
	sinks     []Sink
	logger    *slog.Logger
}

// NewComposer creates a composer delivering decisions to sinks
func NewComposer(endpoints Endpoints, sinks []Sink, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		endpoints: endpoints,
		sinks:     sinks,
		logger:    logger.With("component", "pipeline"),
	}
}

// Run starts a chain for every sensor and waits for all of them. A failing
// chain is logged and does not affect the others; the failures are returned
// joined once every chain has stopped.
func (c *Composer) Run(ctx context.Context, sensorIDs []string) error {
	if len(sensorIDs) == 0 {
		return errors.New("pipeline: no sensors configured")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, sensorID := range sensorIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			chain := NewChain(c.endpoints, c.sinks, c.logger)
			if err := chain.Run(ctx, sensorID); err != nil {
				c.logger.Error("Pipeline: Chain failed", "sensor", sensorID, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("sensor %s: %w", sensorID, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

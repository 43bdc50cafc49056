package database

import (
	"context"
	"log/slog"
	"time"

	"iot-pipeline/internal/models"
)

// ActuationStore persists batches of decisions
type ActuationStore interface {
	SaveActuations(ctx context.Context, events []*models.ActuationEvent) error
}

// RecorderConfig holds configuration for the audit recorder
type RecorderConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultRecorderConfig returns default configuration
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
	}
}

// Recorder batches actuation events from a channel into the store
type Recorder struct {
	store  ActuationStore
	config RecorderConfig
	logger *slog.Logger

	// Input channel (written by the pipeline sink, read by the recorder)
	EventChan chan *models.ActuationEvent

	pending []*models.ActuationEvent
}

// NewRecorder creates a recorder reading from eventChan
func NewRecorder(store ActuationStore, config RecorderConfig, eventChan chan *models.ActuationEvent, logger *slog.Logger) *Recorder {
	defaults := DefaultRecorderConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:     store,
		config:    config,
		logger:    logger.With("component", "recorder"),
		EventChan: eventChan,
	}
}

// Start records events until ctx is cancelled or the channel is closed.
// Whatever is still pending is flushed before returning.
func (r *Recorder) Start(ctx context.Context) {
	r.logger.Info("ActuationRecorder: Starting...")

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ActuationRecorder: Context cancelled, shutting down...")
			r.drain()
			r.flush(context.WithoutCancel(ctx))
			return

		case event, ok := <-r.EventChan:
			if !ok {
				r.logger.Info("ActuationRecorder: Event channel closed, shutting down...")
				r.flush(ctx)
				return
			}
			r.pending = append(r.pending, event)
			if len(r.pending) >= r.config.BatchSize {
				r.flush(ctx)
			}

		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

// drain moves events already queued on the channel into pending without blocking
func (r *Recorder) drain() {
	for {
		select {
		case event, ok := <-r.EventChan:
			if !ok {
				return
			}
			r.pending = append(r.pending, event)
		default:
			return
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	if len(r.pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.store.SaveActuations(ctx, r.pending); err != nil {
		r.logger.Error("ActuationRecorder: Error saving actuation events", "count", len(r.pending), "error", err)
	} else {
		r.logger.Debug("ActuationRecorder: Saved actuation events", "count", len(r.pending))
	}
	r.pending = nil
}

package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-pipeline/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]*models.ActuationEvent
	err     error
}

func (f *fakeStore) SaveActuations(_ context.Context, events []*models.ActuationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, events)
	return f.err
}

func (f *fakeStore) saved() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, batch := range f.batches {
		for _, e := range batch {
			ids = append(ids, e.SensorID)
		}
	}
	return ids
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderFlushesFullBatches(t *testing.T) {
	store := &fakeStore{}
	events := make(chan *models.ActuationEvent)
	recorder := NewRecorder(store, RecorderConfig{BatchSize: 2, FlushInterval: time.Hour}, events, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Start(context.Background())
	}()

	for _, id := range []string{"a", "b", "c"} {
		events <- &models.ActuationEvent{SensorID: id}
	}

	require.Eventually(t, func() bool {
		return len(store.saved()) == 2
	}, 5*time.Second, 5*time.Millisecond)

	// Closing the channel flushes the remainder.
	close(events)
	<-done

	assert.Equal(t, []string{"a", "b", "c"}, store.saved())
	assert.Len(t, store.batches, 2)
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	store := &fakeStore{}
	events := make(chan *models.ActuationEvent, 1)
	recorder := NewRecorder(store, RecorderConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, events, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Start(ctx)

	events <- &models.ActuationEvent{SensorID: "s1"}

	require.Eventually(t, func() bool {
		return len(store.saved()) == 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestRecorderFlushesOnCancel(t *testing.T) {
	store := &fakeStore{}
	events := make(chan *models.ActuationEvent)
	recorder := NewRecorder(store, RecorderConfig{BatchSize: 100, FlushInterval: time.Hour}, events, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Start(ctx)
	}()

	events <- &models.ActuationEvent{SensorID: "s1"}
	cancel()
	<-done

	assert.Equal(t, []string{"s1"}, store.saved())
}

func TestRecorderSavesQueuedEventsOnCancel(t *testing.T) {
	for range 50 {
		store := &fakeStore{}
		events := make(chan *models.ActuationEvent, 10)
		for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
			events <- &models.ActuationEvent{SensorID: id}
		}
		recorder := NewRecorder(store, RecorderConfig{BatchSize: 100, FlushInterval: time.Hour}, events, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		recorder.Start(ctx)

		require.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, store.saved())
	}
}

func TestRecorderKeepsGoingAfterStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("clickhouse down")}
	events := make(chan *models.ActuationEvent)
	recorder := NewRecorder(store, RecorderConfig{BatchSize: 1}, events, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Start(context.Background())
	}()

	events <- &models.ActuationEvent{SensorID: "a"}
	events <- &models.ActuationEvent{SensorID: "b"}
	close(events)
	<-done

	assert.Equal(t, []string{"a", "b"}, store.saved())
}

func TestDefaultRecorderConfigApplied(t *testing.T) {
	recorder := NewRecorder(&fakeStore{}, RecorderConfig{}, nil, nil)
	assert.Equal(t, DefaultRecorderConfig(), recorder.config)
}

func TestSchemaStatements(t *testing.T) {
	statements := AllTables()
	require.Len(t, statements, 2)
	assert.Contains(t, statements[0], "CREATE TABLE IF NOT EXISTS actuation_events")
	for _, column := range []string{"timestamp", "sensor_id", "average", "turn_on", "state"} {
		assert.Contains(t, statements[0], column)
	}
	assert.True(t, strings.Contains(statements[1], "MODIFY TTL"))
}

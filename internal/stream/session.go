package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of one session
type State int

const (
	Idle State = iota
	Open
	Active
	Emitting
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	case Active:
		return "active"
	case Emitting:
		return "emitting"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the state of one streaming call. It is owned by the worker
// serving the call and must not be shared with other goroutines.
type Session struct {
	ID     uuid.UUID
	Method string

	state    State
	sensorID string
	bound    bool
	items    int64

	now    func() time.Time
	logger *slog.Logger
}

// NewSession creates a session in the Open state
func NewSession(id uuid.UUID, method string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:     id,
		Method: method,
		state:  Open,
		now:    time.Now,
		logger: logger.With("session", id.String(), "method", method),
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state
}

// Items returns the number of items emitted so far
func (s *Session) Items() int64 {
	return s.items
}

// Logger returns the session scoped logger
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// BindSensor fixes the sensor id on first use and returns the bound id on every call
func (s *Session) BindSensor(sensorID string) string {
	if !s.bound {
		s.sensorID = sensorID
		s.bound = true
		s.logger.Debug("session bound to sensor", "sensor", sensorID)
	}
	return s.sensorID
}

// SensorID returns the bound sensor id, if any
func (s *Session) SensorID() (string, bool) {
	return s.sensorID, s.bound
}

// Stamp returns the emission timestamp in milliseconds since epoch
func (s *Session) Stamp() int64 {
	return s.now().UnixMilli()
}

func (s *Session) transition(to State) {
	s.state = to
}

// Inbound is an input-consumption policy. Next blocks until the next item is
// available, returns io.EOF once the input has ended, and returns promptly once
// ctx is done.
type Inbound[T any] interface {
	Next(ctx context.Context) (T, error)
}

// Outbound receives the items a session emits, in order
type Outbound[T any] interface {
	Send(T) error
}

// Transform maps one inbound item to exactly one outbound item
type Transform[In, Out any] func(In) (Out, error)

// Pump drives sess from Open to Closed: each inbound item is transformed and
// sent before the next one is consumed. It returns nil when the input ends,
// and otherwise the error that closed the session.
func Pump[In, Out any](ctx context.Context, sess *Session, in Inbound[In], transform Transform[In, Out], out Outbound[Out]) error {
	defer sess.transition(Closed)

	for {
		sess.transition(Active)
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		item, err := in.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				sess.logger.Debug("inbound stream ended", "items", sess.items)
				return nil
			}
			return err
		}

		sess.transition(Emitting)
		result, err := apply(transform, item)
		if err != nil {
			return err
		}
		if err := out.Send(result); err != nil {
			return err
		}
		sess.items++
	}
}

func apply[In, Out any](transform Transform[In, Out], item In) (result Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Errorf(Internal, "transform panicked: %v", r)
		}
	}()
	return transform(item)
}

// Ticker is the inbound policy of periodic stages: the first tick is
// immediate, then one tick per interval until ctx is done.
type Ticker struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewTicker creates a ticker policy. The clock starts on the first Next.
func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Next waits for the next tick
func (t *Ticker) Next(ctx context.Context) (time.Time, error) {
	if t.ticker == nil {
		t.ticker = time.NewTicker(t.interval)
		if err := ctx.Err(); err != nil {
			return time.Time{}, context.Cause(ctx)
		}
		return time.Now(), nil
	}

	select {
	case <-ctx.Done():
		return time.Time{}, context.Cause(ctx)
	case tick := <-t.ticker.C:
		return tick, nil
	}
}

// Stop releases the underlying timer
func (t *Ticker) Stop() {
	if t.ticker != nil {
		t.ticker.Stop()
	}
}

package stream

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies how a call ended
type Code string

const (
	OK              Code = "ok"
	Cancelled       Code = "cancelled"
	Unimplemented   Code = "unimplemented"
	InvalidArgument Code = "invalid_argument"
	Internal        Code = "internal"
	Unavailable     Code = "unavailable"
)

// StatusError is a call failure as seen by both ends of the stream
type StatusError struct {
	Code    Code
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stream: %s", e.Code)
	}
	return fmt.Sprintf("stream: %s: %s", e.Code, e.Message)
}

// Is matches another StatusError with the same code. A target with a message
// must also match the message.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrCancelled       = &StatusError{Code: Cancelled}
	ErrUnimplemented   = &StatusError{Code: Unimplemented}
	ErrInvalidArgument = &StatusError{Code: InvalidArgument}
	ErrInternal        = &StatusError{Code: Internal}
	ErrUnavailable     = &StatusError{Code: Unavailable}
)

// Errorf builds a StatusError with a formatted message
func Errorf(code Code, format string, args ...any) error {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// StatusOf maps err onto the code and message sent to the remote peer
func StatusOf(err error) (Code, string) {
	if err == nil {
		return OK, ""
	}

	var status *StatusError
	if errors.As(err, &status) {
		return status.Code, status.Message
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled, err.Error()
	}
	return Internal, err.Error()
}

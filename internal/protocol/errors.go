package protocol

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedMessage is wrapped by codec decode failures.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrProhibitedConnection is the rejection reason when OnConnect returns false.
	ErrProhibitedConnection = errors.New("Prohibited connection!")
	// ErrInvalidMessageType is reported for messages with an unknown type.
	ErrInvalidMessageType = errors.New("Invalid message type!")
	// ErrInvalidParams is reported when OnSubscribe returns no params.
	ErrInvalidParams = errors.New("invalid params returned from OnSubscribe")
)

// ExecutionError carries structured errors produced by an event source.
// They are forwarded to the client verbatim.
type ExecutionError struct {
	Errors []FormattedError
}

// NewExecutionError builds an ExecutionError with one message per entry.
func NewExecutionError(messages ...string) *ExecutionError {
	errs := make([]FormattedError, 0, len(messages))
	for _, m := range messages {
		errs = append(errs, FormattedError{Message: m})
	}
	return &ExecutionError{Errors: errs}
}

func (e *ExecutionError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// formatError turns any error into the client-visible errors list.
func formatError(err error) []FormattedError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) && len(execErr.Errors) > 0 {
		return execErr.Errors
	}
	return []FormattedError{{Message: err.Error()}}
}
